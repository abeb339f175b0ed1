package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("groq.api_key", "GROQ_API_KEY", "APP_GROQ_API_KEY")
	viper.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY", "APP_DEEPGRAM_API_KEY")
	viper.BindEnv("sarvam.api_key", "SARVAM_API_KEY", "APP_SARVAM_API_KEY")
	viper.BindEnv("exotel.account_sid", "EXOTEL_ACCOUNT_SID")
	viper.BindEnv("exotel.api_key", "EXOTEL_API_KEY")
	viper.BindEnv("exotel.api_token", "EXOTEL_API_TOKEN")
	viper.BindEnv("exotel.phone_number", "EXOTEL_PHONE_NUMBER")
	viper.BindEnv("exotel.webhook_base_url", "WEBHOOK_BASE_URL")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// env vars only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "property-enquiry-agent")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("http.port", 8001)
	viper.SetDefault("call.delay", "5s")
	viper.SetDefault("call.grace_delay", "2s")
	viper.SetDefault("call.max_history_turns", 10)
	viper.SetDefault("storage.enquiries_file", "data/enquiries.json")
	viper.SetDefault("project.name", "Brigade Eternia")
	viper.SetDefault("project.agent_name", "Rohan")
	viper.SetDefault("project.company_name", "JLL Homes")
	viper.SetDefault("groq.url", "https://api.groq.com/openai/v1/chat/completions")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")
	viper.SetDefault("groq.fallback_model", "llama-3.1-8b-instant")
	viper.SetDefault("groq.temperature", 0.5)
	viper.SetDefault("groq.top_p", 0.9)
	viper.SetDefault("groq.max_tokens", 400)
	viper.SetDefault("groq.timeout", "30s")
	viper.SetDefault("deepgram.url", "wss://api.deepgram.com/v1/listen")
	viper.SetDefault("deepgram.model", "nova-2")
	viper.SetDefault("deepgram.language", "en-IN")
	viper.SetDefault("deepgram.sample_rate", 8000)
	viper.SetDefault("deepgram.endpointing", 300)
	viper.SetDefault("sarvam.url", "https://api.sarvam.ai/text-to-speech")
	viper.SetDefault("sarvam.voice_id", "meera")
	viper.SetDefault("sarvam.model", "bulbul:v3")
	viper.SetDefault("sarvam.language", "en-IN")
	viper.SetDefault("sarvam.pace", 1.0)
	viper.SetDefault("sarvam.sample_rate", 16000)
	viper.SetDefault("exotel.subdomain", "api.exotel.com")
	viper.SetDefault("telemetry.tracing_enabled", false)
	viper.SetDefault("telemetry.jaeger_endpoint", "http://jaeger:14268/api/traces")
	viper.SetDefault("logging.level", "info")
}
