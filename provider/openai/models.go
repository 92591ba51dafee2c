package openai

// ChatModel represents an OpenAI chat/completion model.
type ChatModel string

const (
	// GPT-5.2 Series
	GPT52    ChatModel = "gpt-5.2"     // Flagship model
	GPT52Pro ChatModel = "gpt-5.2-pro" // Enhanced reasoning

	// GPT-5.1 Series
	GPT51     ChatModel = "gpt-5.1"
	GPT51Mini ChatModel = "gpt-5.1-mini"

	// GPT-5 Series
	GPT5     ChatModel = "gpt-5"
	GPT5Mini ChatModel = "gpt-5-mini"
	GPT5Nano ChatModel = "gpt-5-nano"

	// O-Series Reasoning Models
	O3     ChatModel = "o3"
	O4Mini ChatModel = "o4-mini"

	// DefaultChatModel is the recommended default model.
	DefaultChatModel ChatModel = GPT52
)

// String returns the model identifier string.
func (m ChatModel) String() string { return string(m) }
