package models

import "time"

// User is the backend's projection of an account as seen by the client.
// Role is "learner", "tutor" or "admin".
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Course carries the catalog fields the chat and certificate surfaces need.
type Course struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	InstructorID string `json:"instructor_id"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// PaginationMeta mirrors the backend's paged-list envelope.
type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
