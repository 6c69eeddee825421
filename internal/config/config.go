package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func init() {
	// Auto-load .env file if present (don't override existing env vars)
	loadDotEnv(".env")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		// Remove surrounding quotes
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

const (
	defaultPort        = "8080"
	defaultEnvironment = "development"

	defaultFigmaAPIBaseURL    = "https://api.figma.com"
	defaultTelegramAPIBaseURL = "https://api.telegram.org"

	defaultPollInterval          = 5 * time.Minute
	defaultPollInitialDelay      = 10 * time.Second
	defaultFetchTimeout          = 15 * time.Second
	defaultAutoSubscribeComments = true

	defaultStateDir = "data"
)

type FigmaConfig struct {
	APIToken   string
	APIBaseURL string
}

type TelegramConfig struct {
	BotToken   string
	APIBaseURL string
}

// Enabled reports whether the Telegram frontend should run at all.
func (c TelegramConfig) Enabled() bool {
	return strings.TrimSpace(c.BotToken) != ""
}

type PollConfig struct {
	Interval              time.Duration
	InitialDelay          time.Duration
	FetchTimeout          time.Duration
	AutoSubscribeComments bool
}

type StoreConfig struct {
	StateDir    string
	DatabaseURL string
	AutoMigrate bool
}

// UsesPostgres reports whether state lives in Postgres instead of local JSON files.
func (c StoreConfig) UsesPostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

type HTTPConfig struct {
	Port           string
	APIToken       string
	AllowedOrigins []string
}

type Config struct {
	Environment string
	Figma       FigmaConfig
	Telegram    TelegramConfig
	Poll        PollConfig
	Store       StoreConfig
	HTTP        HTTPConfig
}

func Load() (Config, error) {
	cfg := Config{
		Environment: resolveEnvironment(),
		Figma: FigmaConfig{
			APIToken: strings.TrimSpace(os.Getenv("FIGMA_API_TOKEN")),
			APIBaseURL: firstNonEmpty(
				strings.TrimSpace(os.Getenv("FIGMA_API_BASE_URL")),
				defaultFigmaAPIBaseURL,
			),
		},
		Telegram: TelegramConfig{
			BotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
			APIBaseURL: firstNonEmpty(
				strings.TrimSpace(os.Getenv("TELEGRAM_API_BASE_URL")),
				defaultTelegramAPIBaseURL,
			),
		},
		Store: StoreConfig{
			StateDir: firstNonEmpty(
				strings.TrimSpace(os.Getenv("FIGWATCH_STATE_DIR")),
				defaultStateDir,
			),
			DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		},
		HTTP: HTTPConfig{
			Port:           firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), defaultPort),
			APIToken:       strings.TrimSpace(os.Getenv("FIGWATCH_API_TOKEN")),
			AllowedOrigins: parseList("FIGWATCH_CORS_ORIGINS", []string{"*"}),
		},
	}

	pollInterval, err := parseDuration("FIGWATCH_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.Poll.Interval = pollInterval

	initialDelay, err := parseDuration("FIGWATCH_POLL_INITIAL_DELAY", defaultPollInitialDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.Poll.InitialDelay = initialDelay

	fetchTimeout, err := parseDuration("FIGWATCH_FETCH_TIMEOUT", defaultFetchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Poll.FetchTimeout = fetchTimeout

	autoSubscribe, err := parseBool("AUTO_SUBSCRIBE_COMMENTS", defaultAutoSubscribeComments)
	if err != nil {
		return Config{}, err
	}
	cfg.Poll.AutoSubscribeComments = autoSubscribe

	autoMigrate, err := parseBool("FIGWATCH_AUTOMIGRATE", cfg.Store.UsesPostgres())
	if err != nil {
		return Config{}, err
	}
	cfg.Store.AutoMigrate = autoMigrate

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Figma.APIBaseURL == "" {
		return fmt.Errorf("FIGMA_API_BASE_URL must not be empty")
	}

	if c.Telegram.Enabled() && c.Telegram.APIBaseURL == "" {
		return fmt.Errorf("TELEGRAM_API_BASE_URL must not be empty when TELEGRAM_BOT_TOKEN is set")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("FIGWATCH_POLL_INTERVAL must be greater than zero")
	}
	if c.Poll.FetchTimeout <= 0 {
		return fmt.Errorf("FIGWATCH_FETCH_TIMEOUT must be greater than zero")
	}

	if !c.Store.UsesPostgres() && c.Store.StateDir == "" {
		return fmt.Errorf("FIGWATCH_STATE_DIR must not be empty when DATABASE_URL is not set")
	}
	if c.Store.AutoMigrate && !c.Store.UsesPostgres() {
		return fmt.Errorf("FIGWATCH_AUTOMIGRATE requires DATABASE_URL to be set")
	}

	if c.HTTP.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}

	if !isNonDevelopment(c.Environment) {
		return nil
	}

	if c.Figma.APIToken == "" {
		return fmt.Errorf("FIGMA_API_TOKEN is required in non-development environments")
	}

	return nil
}

func resolveEnvironment() string {
	return strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("APP_ENV")),
		strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		strings.TrimSpace(os.Getenv("GO_ENV")),
		defaultEnvironment,
	))
}

func isNonDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

func parseBool(name string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean value", name)
	}
}

func parseDuration(name string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		// Bare integers are read as seconds.
		if seconds, convErr := strconv.Atoi(raw); convErr == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second, nil
		}
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}

	return parsed, nil
}

func parseList(name string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue
	}

	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
