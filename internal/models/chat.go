package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one utterance in a chat transcript. Timestamp is epoch
// milliseconds and is informational; ordering is the slice position.
type ChatMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Chat is one visitor session. Messages is the full transcript stored as a
// JSON array in a single row; appends go through a read-modify-write.
type Chat struct {
	ID             int64         `json:"id"`
	UserID         int64         `json:"userId"`
	Messages       []ChatMessage `json:"messages"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	SentToCRM      bool          `json:"sentToCRM"`
}
