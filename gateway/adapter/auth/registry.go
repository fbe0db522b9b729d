package auth

// Format names.
const (
	FormatOpenAI    = "openai"
	FormatAnthropic = "anthropic"
	FormatGemini    = "gemini"
)

// Registry maps API format to its outbound auth strategy.
type Registry map[string]Strategy

// NewRegistry constructs a registry with all supported formats.
func NewRegistry() Registry {
	return Registry{
		FormatOpenAI:    OpenAIAuth{},
		FormatAnthropic: AnthropicAuth{},
		FormatGemini:    GeminiAuth{},
	}
}
