// Package config loads ilji's settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"github.com/bdobrica/ilji/common/environment"
	"github.com/bdobrica/ilji/internal/ilji/guard"
	"github.com/bdobrica/ilji/internal/ilji/history"
	"github.com/bdobrica/ilji/internal/ilji/llm"
	"github.com/bdobrica/ilji/internal/ilji/text"
)

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Matrix holds the transport settings.
type Matrix struct {
	Homeserver  string
	UserID      string
	AccessToken string
	Rooms       []string
}

// LLM holds the model provider settings.
type LLM struct {
	Provider        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	Tiers           llm.Tiers
	MaxTokens       int
}

// Notion holds the document workspace settings.
type Notion struct {
	Token                 string
	DatabaseID            string
	TranslationDatabaseID string
}

// Google holds the calendar settings.
type Google struct {
	CredentialsFile string
	CalendarID      string
}

// Config is the full application configuration.
type Config struct {
	Matrix       Matrix
	DatabasePath string
	Location     *time.Location
	ModesFile    string

	HistoryCeiling   int
	MaxInputChars    int
	MaxChunkChars    int
	CooldownStandard time.Duration
	CooldownHeavy    time.Duration

	LLM    LLM
	Notion Notion
	Google Google

	JournalDir       string
	AutosaveSchedule string
	HTTPAddr         string

	LogLevel  string
	LogFormat string
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set take precedence over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv(environment.New())
}

// FromEnv builds a Config from env. It fails on malformed values but not on
// missing credentials; Validate checks those.
func FromEnv(env *environment.Reader) (*Config, error) {
	c := &Config{
		Matrix: Matrix{
			Homeserver:  env.String("MATRIX_HOMESERVER", ""),
			UserID:      env.String("MATRIX_USER_ID", ""),
			AccessToken: env.String("MATRIX_ACCESS_TOKEN", ""),
			Rooms:       env.List("MATRIX_ROOMS"),
		},
		DatabasePath: env.String("DATABASE_PATH", "./ilji.db"),
		Location:     env.Location("TIMEZONE", time.Local),
		ModesFile:    env.String("MODES_FILE", ""),

		HistoryCeiling:   env.Int("HISTORY_CEILING", history.DefaultCeiling),
		MaxInputChars:    env.Int("MAX_INPUT_CHARS", guard.DefaultMaxInput),
		MaxChunkChars:    env.Int("MAX_CHUNK_CHARS", text.DefaultChunkSize),
		CooldownStandard: env.Duration("COOLDOWN_STANDARD", guard.DefaultStandardCooldown),
		CooldownHeavy:    env.Duration("COOLDOWN_HEAVY", guard.DefaultHeavyCooldown),

		LLM: LLM{
			Provider:        env.OneOf("LLM_PROVIDER", ProviderAnthropic, ProviderAnthropic, ProviderOpenAI),
			AnthropicAPIKey: env.String("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    env.String("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   env.String("OPENAI_BASE_URL", ""),
			Tiers: llm.Tiers{
				Fast:  env.String("MODEL_FAST", llm.DefaultTiers.Fast),
				Smart: env.String("MODEL_SMART", llm.DefaultTiers.Smart),
			},
			MaxTokens: env.Int("LLM_MAX_TOKENS", llm.DefaultMaxTokens),
		},
		Notion: Notion{
			Token:                 env.String("NOTION_TOKEN", ""),
			DatabaseID:            env.String("NOTION_DATABASE_ID", ""),
			TranslationDatabaseID: env.String("NOTION_TRANSLATION_DATABASE_ID", ""),
		},
		Google: Google{
			CredentialsFile: env.String("GOOGLE_CREDENTIALS_FILE", ""),
			CalendarID:      env.String("GOOGLE_CALENDAR_ID", "primary"),
		},

		JournalDir:       env.String("JOURNAL_DIR", "logs"),
		AutosaveSchedule: env.String("AUTOSAVE_SCHEDULE", ""),
		HTTPAddr:         env.String("HTTP_ADDR", ""),

		LogLevel:  env.OneOf("LOG_LEVEL", "info", "debug", "info", "warn", "error"),
		LogFormat: env.OneOf("LOG_FORMAT", "text", "text", "json"),
	}
	if err := env.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Validate checks what `ilji serve` needs: Matrix credentials and a key
// for the selected provider.
func (c *Config) Validate() error {
	var errs []error
	if c.Matrix.Homeserver == "" {
		errs = append(errs, errors.New("MATRIX_HOMESERVER is required"))
	}
	if c.Matrix.UserID == "" {
		errs = append(errs, errors.New("MATRIX_USER_ID is required"))
	}
	if c.Matrix.AccessToken == "" {
		errs = append(errs, errors.New("MATRIX_ACCESS_TOKEN is required"))
	}
	switch c.LLM.Provider {
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" && c.LLM.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY or OPENAI_BASE_URL is required for the openai provider"))
		}
	}
	if (c.Notion.Token == "") != (c.Notion.DatabaseID == "") {
		errs = append(errs, errors.New("NOTION_TOKEN and NOTION_DATABASE_ID must be set together"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NotionEnabled reports whether the Notion adapter should be built.
func (c *Config) NotionEnabled() bool {
	return c.Notion.Token != "" && c.Notion.DatabaseID != ""
}

// CalendarEnabled reports whether the calendar adapter should be built.
func (c *Config) CalendarEnabled() bool {
	return c.Google.CredentialsFile != ""
}

// Secrets lists the credential values the logger must redact.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.Matrix.AccessToken, c.LLM.AnthropicAPIKey, c.LLM.OpenAIAPIKey, c.Notion.Token} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
