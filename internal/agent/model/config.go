package model

// ================ Config ================

// SessionConfig controls conversation persistence and context assembly.
type SessionConfig struct {
	TTL string `envconfig:"SESSION_TTL" default:"24h"`
	// MaxTurns bounds how much history is replayed into model context.
	MaxTurns int `envconfig:"SESSION_CONTEXT_MAX_TURNS" default:"10"`
	Tools    struct {
		MaxCalls int `envconfig:"SESSION_TOOL_MAX_CALLS" default:"4"`
	}
}

// ClassifierModelConfig configures the intent classification model.
type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.0"`
}

// ResponderModelConfig configures the FAQ and action response models.
type ResponderModelConfig struct {
	Model       string  `envconfig:"RESPONDER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONDER_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"RESPONDER_TEMPERATURE" default:"0.3"`
}

// PromptConfig carries store identity injected into system prompts.
type PromptConfig struct {
	StoreName string `envconfig:"PROMPT_STORE_NAME" default:"FreshCart"`
	StoreType string `envconfig:"PROMPT_STORE_TYPE" default:"online grocery store"`
}
