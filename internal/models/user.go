package models

// User identifies a widget visitor. Created once when a chat starts and
// never modified afterwards.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
