package entity

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Message struct {
	Role    MessageRole
	Content string
	// Images are attached as base64 data URLs for vision-capable models.
	Images []Image
}

type Image struct {
	Data   []byte
	Format string
}
