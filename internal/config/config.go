// Package config loads the studio configuration from TOML and environment
// variables. Every business tunable lives here; changing prices, hours, or
// lexicons never requires a code change.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gfrancoarq/franco-orrego/internal/calendar"
	"github.com/gfrancoarq/franco-orrego/internal/compose"
	"github.com/gfrancoarq/franco-orrego/internal/escalation"
	"github.com/gfrancoarq/franco-orrego/internal/lead"
	"github.com/gfrancoarq/franco-orrego/internal/llm"
	"github.com/gfrancoarq/franco-orrego/internal/policy"
	"github.com/gfrancoarq/franco-orrego/internal/pricing"
	"github.com/gfrancoarq/franco-orrego/internal/quote"
	"github.com/gfrancoarq/franco-orrego/internal/whatsapp"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	WhatsApp   whatsapp.SenderConfig `koanf:"whatsapp"`
	Pricing    pricing.Config        `koanf:"pricing"`
	Policy     policy.Config         `koanf:"policy"`
	Lead       lead.TrackerConfig    `koanf:"lead"`
	Escalation escalation.Config     `koanf:"escalation"`
	Quote      quote.DetectorConfig  `koanf:"quote"`
	Pacing     compose.Config        `koanf:"pacing"`

	LLM struct {
		Primary  llm.ProviderConfig `koanf:"primary"`
		Fallback llm.ProviderConfig `koanf:"fallback"`
	} `koanf:"llm"`

	Auth struct {
		JWTSecret string        `koanf:"jwt_secret"`
		TokenTTL  time.Duration `koanf:"token_ttl"`
	} `koanf:"auth"`

	Queue struct {
		MaxWorkers int `koanf:"max_workers"`
		MaxRetries int `koanf:"max_retries"`
	} `koanf:"queue"`

	// Calendar is optional; when base_url is empty the availability endpoint
	// stays disabled.
	Calendar calendar.Config `koanf:"calendar"`

	Greetings struct {
		// WelcomeText / WelcomeAudioURL form the first-contact payload during
		// the day phase. When the audio URL is set it wins.
		WelcomeText     string `koanf:"welcome_text"`
		WelcomeAudioURL string `koanf:"welcome_audio_url"`
		// NightNotice is sent instead of any generated reply outside hours.
		NightNotice string `koanf:"night_notice"`
		// ReopenTemplate is the approved template used on the fallback
		// delivery path once the reply window has closed.
		ReopenTemplate string `koanf:"reopen_template"`
		// NeedInfoText is the clarifying question sent when a quote cannot be
		// computed from what the customer provided.
		NeedInfoText string `koanf:"need_info_text"`
		// DegradedText covers total generation failure.
		DegradedText string `koanf:"degraded_text"`
	} `koanf:"greetings"`

	Persona struct {
		SystemPrompt  string `koanf:"system_prompt"`
		HistoryWindow int    `koanf:"history_window"`
	} `koanf:"persona"`
}

// Load reads configuration from defaults, an optional TOML file, and
// ALICIA_-prefixed environment variables (in that order of precedence).
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(defaults(), "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range []string{"./studio.toml", "$HOME/.alicia.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("ALICIA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ALICIA_")), "_", ".", -1)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	applyStructuredDefaults(&cfg)
	return &cfg, nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":            8080,
		"auth.token_ttl":         "12h",
		"persona.history_window": 6,
		"queue.max_workers":      4,
		"queue.max_retries":      5,
		"llm.primary.model":      "llama-3.3-70b-versatile",
		"llm.fallback.model":     "gemini-1.5-flash",
		"greetings.night_notice": "¡Hola! Ya cerramos por hoy 🌙 Mañana desde las 9:00 te respondemos altiro.",
		"greetings.welcome_text": "¡Hola! Soy Alicia, del estudio de Franco Orrego 🤘 Cuéntame qué tatuaje tienes en mente.",
		"greetings.need_info_text": "Para cotizarte necesito el tamaño aproximado en centímetros (ancho x alto) " +
			"y la zona del cuerpo. ¿Me cuentas?",
		"greetings.degraded_text": "Se me cayó el sistema un segundo 🙈 Dame un momento y te respondo, " +
			"o si prefieres escríbeme de nuevo en un rato.",
		"greetings.reopen_template": "reapertura_conversacion",
	}
}

// applyStructuredDefaults fills the nested structs that have their own
// default constructors when the file left them empty.
func applyStructuredDefaults(cfg *Config) {
	if cfg.Pricing.Tiers.StandardPrice == 0 {
		cfg.Pricing = pricing.DefaultConfig()
	}
	if cfg.Policy.CloseHour == 0 {
		cfg.Policy = policy.DefaultConfig()
	}
	if cfg.Lead.BudgetCap == 0 {
		cfg.Lead = lead.DefaultTrackerConfig()
	}
	if len(cfg.Escalation.Lexicon) == 0 {
		cfg.Escalation = escalation.DefaultConfig()
	}
	if len(cfg.Quote.CurrencyMarkers) == 0 {
		cfg.Quote = quote.DefaultDetectorConfig()
	}
	if cfg.Pacing.MaxChunks == 0 {
		cfg.Pacing = compose.DefaultConfig()
	}
	if cfg.WhatsApp.BaseURL == "" {
		base := whatsapp.DefaultSenderConfig()
		base.PhoneID = cfg.WhatsApp.PhoneID
		base.Token = cfg.WhatsApp.Token
		base.VerifyToken = cfg.WhatsApp.VerifyToken
		cfg.WhatsApp = base
	}
}

// Validate checks the pieces the service cannot run without.
func Validate(cfg *Config) error {
	if cfg.WhatsApp.PhoneID == "" {
		return fmt.Errorf("whatsapp phone_id is required")
	}
	if cfg.WhatsApp.Token == "" {
		return fmt.Errorf("whatsapp token is required")
	}
	if cfg.WhatsApp.VerifyToken == "" {
		return fmt.Errorf("whatsapp verify_token is required")
	}
	if cfg.LLM.Primary.APIKey == "" {
		return fmt.Errorf("llm primary api_key is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	return nil
}

// Init writes a sample configuration file.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sample := `# Alicia - configuración del estudio

[server]
port = 8080

[whatsapp]
phone_id = "your-phone-id"
token = "your-meta-token"
verify_token = "your-webhook-verify-token"
test_account = "test_account"

[llm.primary]
api_key = "your-groq-api-key"
model = "llama-3.3-70b-versatile"
temperature = 0.0
max_tokens = 120

[llm.fallback]
api_key = "your-google-api-key"
model = "gemini-1.5-flash"

[policy]
open_hour = 9
close_hour = 20
timezone = "America/Santiago"

[pacing]
start_delay = "3500ms"
chunk_delay = "3s"
max_chunks = 3

[lead]
budget_cap = 1

[auth]
jwt_secret = "change-me"
`
	return os.WriteFile(configPath, []byte(sample), 0644)
}
