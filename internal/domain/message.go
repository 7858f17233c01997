package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is a single entry in the consult chat log.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
