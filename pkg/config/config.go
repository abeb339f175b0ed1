package config

import "time"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Call      CallConfig      `mapstructure:"call"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Project   ProjectConfig   `mapstructure:"project"`
	Groq      GroqConfig      `mapstructure:"groq"`
	Deepgram  DeepgramConfig  `mapstructure:"deepgram"`
	Sarvam    SarvamConfig    `mapstructure:"sarvam"`
	Exotel    ExotelConfig    `mapstructure:"exotel"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CallConfig struct {
	// Delay between form submission and placing the outbound call.
	Delay time.Duration `mapstructure:"delay"`
	// Grace period after the final reply before teardown.
	GraceDelay time.Duration `mapstructure:"grace_delay"`
	// Conversation history window, in user/assistant turn pairs.
	MaxHistoryTurns int `mapstructure:"max_history_turns"`
}

type StorageConfig struct {
	EnquiriesFile string `mapstructure:"enquiries_file"`
}

type ProjectConfig struct {
	Name        string `mapstructure:"name"`
	AgentName   string `mapstructure:"agent_name"`
	CompanyName string `mapstructure:"company_name"`
}

type GroqConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	URL           string        `mapstructure:"url"`
	Model         string        `mapstructure:"model"`
	FallbackModel string        `mapstructure:"fallback_model"`
	Temperature   float64       `mapstructure:"temperature"`
	TopP          float64       `mapstructure:"top_p"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type DeepgramConfig struct {
	APIKey      string `mapstructure:"api_key"`
	URL         string `mapstructure:"url"`
	Model       string `mapstructure:"model"`
	Language    string `mapstructure:"language"`
	SampleRate  int    `mapstructure:"sample_rate"`
	Endpointing int    `mapstructure:"endpointing"`
}

type SarvamConfig struct {
	APIKey     string  `mapstructure:"api_key"`
	URL        string  `mapstructure:"url"`
	VoiceID    string  `mapstructure:"voice_id"`
	Model      string  `mapstructure:"model"`
	Language   string  `mapstructure:"language"`
	Pace       float64 `mapstructure:"pace"`
	SampleRate int     `mapstructure:"sample_rate"`
}

type ExotelConfig struct {
	AccountSID     string `mapstructure:"account_sid"`
	APIKey         string `mapstructure:"api_key"`
	APIToken       string `mapstructure:"api_token"`
	Subdomain      string `mapstructure:"subdomain"`
	PhoneNumber    string `mapstructure:"phone_number"`
	WebhookBaseURL string `mapstructure:"webhook_base_url"`
}

type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}
