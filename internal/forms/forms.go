package forms

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"eduhub/internal/backend"
	"eduhub/internal/session"
	"eduhub/pkg/domain"
)

var (
	// ErrInvalidCredentials is the user-visible "wrong email or password"
	// category, distinct from every other login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldErrors maps a field name to the message of its first failing rule.
// A non-empty map blocks submission; nothing is sent over the network.
type FieldErrors map[string]string

// LoginForm carries the login screen's fields.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Validate evaluates the login rules client-side.
func (f LoginForm) Validate() FieldErrors {
	return collectFieldErrors(Validate.Struct(f))
}

// RegistrationForm carries the registration screen's fields.
type RegistrationForm struct {
	Name      string `json:"name" validate:"required,notblank,max=50"`
	Surname   string `json:"surname" validate:"required,notblank,max=50"`
	Birthdate string `json:"birthdate" validate:"required,dateformat,pastdate"`
	Role      string `json:"role" validate:"required,oneof=STUDENT TEACHER"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=100"`
}

// Validate evaluates the registration rules client-side.
func (f RegistrationForm) Validate() FieldErrors {
	return collectFieldErrors(Validate.Struct(f))
}

// collectFieldErrors keeps the first failing rule per field, translated.
func collectFieldErrors(err error) FieldErrors {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"": err.Error()}
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = fe.Translate(Translator)
	}
	return out
}

// LoginFlow validates and submits the login form.
type LoginFlow struct {
	Backend  *backend.Client
	Sessions *session.Store
}

// Submit validates the form and, if clean, exchanges the credentials for a
// bearer token and hands it to the session store. A 401 surfaces as
// ErrInvalidCredentials; any other failure is the generic category.
func (f *LoginFlow) Submit(form LoginForm) (FieldErrors, error) {
	if fieldErrs := form.Validate(); len(fieldErrs) > 0 {
		return fieldErrs, nil
	}
	token, err := f.Backend.Login(form.Email, form.Password)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := f.Sessions.CompleteLogin(token); err != nil {
		return nil, fmt.Errorf("complete login: %w", err)
	}
	return nil, nil
}

// RegistrationFlow validates and submits the registration form.
type RegistrationFlow struct {
	Backend *backend.Client
}

// PartialRegistrationError reports the second registration write failing
// after the first succeeded: the profile record already exists server-side
// with no credential attached. The backend exposes no compensating delete,
// so the condition is surfaced rather than rolled back.
type PartialRegistrationError struct {
	UserID int
	Cause  error
}

func (e *PartialRegistrationError) Error() string {
	return fmt.Sprintf("credential registration failed after profile %d was created: %v", e.UserID, e.Cause)
}

func (e *PartialRegistrationError) Unwrap() error {
	return e.Cause
}

// Submit validates the form and performs the two sequential registration
// writes: the profile record first, then the credential record linked by the
// returned id. If the first write fails the second is never attempted.
func (f *RegistrationFlow) Submit(form RegistrationForm) (FieldErrors, error) {
	if fieldErrs := form.Validate(); len(fieldErrs) > 0 {
		return fieldErrs, nil
	}
	userID, err := f.Backend.RegisterUser(form.Name, form.Surname, form.Birthdate, domain.Role(form.Role))
	if err != nil {
		return nil, fmt.Errorf("register profile: %w", err)
	}
	if err := f.Backend.RegisterCredential(form.Email, form.Password, userID); err != nil {
		return nil, &PartialRegistrationError{UserID: userID, Cause: err}
	}
	return nil, nil
}
