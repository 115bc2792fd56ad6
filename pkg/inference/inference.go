// Package inference is the chat-completions transport behind the remote
// dialogue client.
//
// Every request carries a system prompt and a single user message and is
// sent exactly once. Any server speaking the OpenAI chat completions
// protocol works: OpenAI itself, Ollama, vLLM or Groq.
//
//	client, err := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-4o-mini"),
//	)
//	resp, err := client.Chat(ctx, inference.Prompt(system, "こんにちは"))
package inference

import (
	"context"
	"time"
)

// Provider answers chat requests.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Health(ctx context.Context) error
	Close() error
}

// Role of a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the request transcript. The JSON form is the
// wire form.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewSystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

func NewUserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ChatRequest is a single completion request. Zero values for Model,
// MaxTokens and Temperature fall back to the client's configuration.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Prompt builds the two-message request the dialogue sends.
func Prompt(system, user string) *ChatRequest {
	return &ChatRequest{Messages: []Message{NewSystemMessage(system), NewUserMessage(user)}}
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Model        string
	Usage        Usage
	Latency      time.Duration
}

// Text returns the reply content.
func (r *ChatResponse) Text() string { return r.Message.Content }

// Usage is the token accounting the server reports.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
