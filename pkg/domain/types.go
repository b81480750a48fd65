package domain

import "time"

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Credential is the identity record tied to a login email.
type Credential struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

// User is the profile behind a credential. Birthdate travels as a
// calendar date string (2006-01-02).
type User struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Birthdate string `json:"birthdate"`
	Role      Role   `json:"role"`
}

// CourseMembership links a user to a course they are enrolled in.
type CourseMembership struct {
	ID       int `json:"id"`
	CourseID int `json:"courseId"`
	UserID   int `json:"userId"`
}

type Course struct {
	ID         int    `json:"id"`
	Subject    string `json:"subject"`
	CourseName string `json:"coursename"`
	Section    string `json:"section"`
}

// File is a stored attachment as acknowledged by the backend.
type File struct {
	ID        int       `json:"id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Mimetype  string    `json:"mimetype"`
	Size      int64     `json:"size"`
	OwnerID   int       `json:"ownerId"`
	CourseID  int       `json:"courseId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document groups uploaded files under a title within a course. Files only
// ever contains backend-acknowledged uploads.
type Document struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Files     []File    `json:"files,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Quiz struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
