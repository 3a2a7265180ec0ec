package domain

// ChatMessage is a normalized relay payload.
type ChatMessage struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// AssistantMessage is one turn of an assistant conversation.
type AssistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
