package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"eduhub/pkg/domain"
)

// Client calls the EduHub backend over HTTP. It holds no session state;
// authenticated calls take the bearer token as a parameter so the session
// store stays the single owner of the token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a backend error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a backend client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login exchanges email and password for a bearer token. The backend
// answers 401 on bad credentials.
func (c *Client) Login(email, password string) (string, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp loginResponse
	if err := c.doJSON(http.MethodPost, "/login", "", payload, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// CredentialByEmail resolves the credential record behind the token.
func (c *Client) CredentialByEmail(token string) (domain.Credential, error) {
	var cred domain.Credential
	if err := c.doJSON(http.MethodGet, "/credential-by-email", token, nil, &cred); err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}

// UserByEmail resolves the user profile behind the token.
func (c *Client) UserByEmail(token string) (domain.User, error) {
	var user domain.User
	if err := c.doJSON(http.MethodGet, "/credential-user-by-email", token, nil, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// EditUser submits a full or partial profile update. The echoed payload is
// intentionally discarded; callers re-fetch the profile because the backend
// is the source of truth.
func (c *Client) EditUser(token string, fields map[string]any) error {
	return c.doJSON(http.MethodPut, "/user/edit", token, fields, nil)
}

// RegisterUser creates the profile record and returns its id.
func (c *Client) RegisterUser(name, surname, birthdate string, role domain.Role) (int, error) {
	payload := map[string]string{
		"name":      name,
		"surname":   surname,
		"birthdate": birthdate,
		"role":      string(role),
	}
	var resp registerResponse
	if err := c.doJSON(http.MethodPost, "/user/register", "", payload, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// RegisterCredential creates the credential record linked to a registered
// user id.
func (c *Client) RegisterCredential(email, password string, userID int) error {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"userid":   userID,
	}
	return c.doJSON(http.MethodPost, "/credential/register", "", payload, nil)
}

// UserCourses fetches the course memberships of a user.
func (c *Client) UserCourses(token string, userID int) ([]domain.CourseMembership, error) {
	path := fmt.Sprintf("/usercourses-by-userid/%d", userID)
	var memberships []domain.CourseMembership
	if err := c.doJSON(http.MethodGet, path, token, nil, &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}

// Course fetches a single course detail record.
func (c *Client) Course(token string, id int) (domain.Course, error) {
	path := fmt.Sprintf("/course/%d", id)
	var course domain.Course
	if err := c.doJSON(http.MethodGet, path, token, nil, &course); err != nil {
		return domain.Course{}, err
	}
	return course, nil
}

// CreateCourse creates a course and returns the stored record.
func (c *Client) CreateCourse(token string, course domain.Course) (domain.Course, error) {
	var created domain.Course
	if err := c.doJSON(http.MethodPost, "/course/create", token, course, &created); err != nil {
		return domain.Course{}, err
	}
	return created, nil
}

// EditCourse updates the supplied fields of a course by id.
func (c *Client) EditCourse(token string, id int, fields map[string]any) error {
	path := fmt.Sprintf("/course/%d", id)
	return c.doJSON(http.MethodPut, path, token, fields, nil)
}

// DeleteCourse removes a course by id.
func (c *Client) DeleteCourse(token string, id int) error {
	path := fmt.Sprintf("/course/%d", id)
	return c.doJSON(http.MethodDelete, path, token, nil, nil)
}

// UploadFile uploads one attachment as a multipart request and returns the
// stored file record as acknowledged by the backend.
func (c *Client) UploadFile(token string, courseID int, filename string, r io.Reader) (domain.File, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("courseId", fmt.Sprintf("%d", courseID)); err != nil {
		return domain.File{}, err
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return domain.File{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return domain.File{}, err
	}
	if err := writer.Close(); err != nil {
		return domain.File{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/file", body)
	if err != nil {
		return domain.File{}, err
	}
	addAuthHeader(req, token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var file domain.File
	if err := c.do(req, &file); err != nil {
		return domain.File{}, err
	}
	return file, nil
}

// Notifications fetches the notification feed of a user.
func (c *Client) Notifications(token string, userID int) ([]domain.Notification, error) {
	path := fmt.Sprintf("/user-notifications/%d", userID)
	var notifications []domain.Notification
	if err := c.doJSON(http.MethodGet, path, token, nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// IsUnauthorized reports whether err is a backend 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func (c *Client) doJSON(method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuthHeader(req, token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

type loginResponse struct {
	Token string `json:"token"`
}

type registerResponse struct {
	ID int `json:"id"`
}
