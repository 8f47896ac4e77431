package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	AIGateway      AIGatewayConfig      `yaml:"ai_gateway"`
	Database       DatabaseConfig       `yaml:"database"`
	Mood           MoodConfig           `yaml:"mood"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
}

type AIGatewayConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

type DatabaseConfig struct {
	// Enabled turns on the journal API; the relay works without a database
	Enabled    bool   `yaml:"enabled"`
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"ssl_mode"`
	Path       string `yaml:"path"`
	Workers    int    `yaml:"workers"`
	BufferSize int    `yaml:"buffer_size"`
}

type MoodConfig struct {
	CacheSize int `yaml:"cache_size"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
	// File enables a rotated log file next to stdout when set
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

const (
	DefaultModel   = "google/gemini-2.5-flash"
	DefaultBaseURL = "https://ai.gateway.lovable.dev/v1"
)

// DefaultSystemPrompt is the instruction prepended to every conversation
const DefaultSystemPrompt = `Jesteś przyjaznym i empatycznym asystentem AI prowadzącym dziennik refleksji użytkownika.

Twoja rola:
- Zadawaj pytania pomagające w autorefleksji i głębszym zrozumieniu emocji
- Pomagaj porządkować myśli i nazywać uczucia
- Obserwuj wzorce w zachowaniu i nastroju użytkownika
- Sugeruj konkretne cele rozwojowe i techniki radzenia sobie z trudnościami
- Twórz podsumowania i wnioski z rozmów
- Analizuj długoterminowe wzorce na przestrzeni wielu wpisów:
  - trendy nastroju (wzrost/spadek, wahania),
  - powtarzające się wyzwalacze/sytuacje/osoby,
  - dominujące tematy i potrzeby,
  - skuteczność strategii radzenia sobie,
  - postępy w celach i nawykach.

Kontekst:
- Jeżeli w wiadomości pojawi się zebrana treść z kilku dni (np. "Oto treść z ostatnich 7 dni: …"), potraktuj ją jako kontekst historyczny do analizy trendów.
- Zachowuj i wykorzystuj kontekst bieżącej rozmowy.

Zasady:
- Bądź ciepły, wspierający i bez osądzania
- Zadawaj pytania otwarte zachęcające do refleksji
- Pomagaj użytkownikowi samodzielnie dochodzić do wniosków
- Oferuj konkretne techniki i ćwiczenia gdy są potrzebne
- Zachowuj kontekst poprzednich rozmów
- Wnioski formułuj konkretnie, opierając się na obserwacjach z kontekstu.

Przykładowe pytania:
- "Co było dziś najważniejsze dla Ciebie?"
- "Jak się czułeś/czułaś w tej sytuacji?"
- "Co chciałbyś/chciałabyś zmienić?"
- "Czego nauczyła Cię ta sytuacja?"

Format odpowiedzi:
- Krótkie akapity (3–5 zdań).
- Jeśli adekwatne, wypunktuj:
  - 1–3 obserwacje,
  - 1–2 rekomendacje na kolejny krok,
  - jedno pytanie pogłębiające.
`

// LoadYAML loads configuration from YAML file with environment variable overrides
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		// Unmarshal over the defaults so omitted keys keep their default value
		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8080",
			CorsOrigins: []string{"*"},
		},
		AIGateway: AIGatewayConfig{
			BaseURL:      DefaultBaseURL,
			Model:        DefaultModel,
			SystemPrompt: DefaultSystemPrompt,
		},
		Database: DatabaseConfig{
			Enabled:    true,
			Driver:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			User:       "journal",
			Name:       "journal",
			SSLMode:    "disable",
			Path:       "journal.db",
			Workers:    2,
			BufferSize: 256,
		},
		Mood: MoodConfig{
			CacheSize: 512,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
			MaxSizeMB:    100,
			MaxBackups:   3,
			MaxAgeDays:   28,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
			MaxRequests:      1,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = splitList(val)
	}

	// AI gateway overrides; LOVABLE_API_KEY is accepted for existing deployments
	if val := os.Getenv("LOVABLE_API_KEY"); val != "" {
		config.AIGateway.APIKey = val
	}
	if val := os.Getenv("AI_GATEWAY_API_KEY"); val != "" {
		config.AIGateway.APIKey = val
	}
	if val := os.Getenv("AI_GATEWAY_URL"); val != "" {
		config.AIGateway.BaseURL = val
	}
	if val := os.Getenv("AI_MODEL"); val != "" {
		config.AIGateway.Model = val
	}

	// Database overrides
	if val := os.Getenv("DATABASE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Database.Enabled = b
		}
	}
	if val := os.Getenv("DATABASE_DRIVER"); val != "" {
		config.Database.Driver = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		config.Database.URL = val
	}
	if val := os.Getenv("DATABASE_HOST"); val != "" {
		config.Database.Host = val
	}
	if val := os.Getenv("DATABASE_PORT"); val != "" {
		config.Database.Port = val
	}
	if val := os.Getenv("DATABASE_USER"); val != "" {
		config.Database.User = val
	}
	if val := os.Getenv("DATABASE_PASSWORD"); val != "" {
		config.Database.Password = val
	}
	if val := os.Getenv("DATABASE_NAME"); val != "" {
		config.Database.Name = val
	}
	if val := os.Getenv("DATABASE_SSL_MODE"); val != "" {
		config.Database.SSLMode = val
	}
	if val := os.Getenv("DATABASE_PATH"); val != "" {
		config.Database.Path = val
	}
	if val := os.Getenv("DATABASE_WORKERS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Database.Workers = i
		}
	}

	// Mood overrides
	if val := os.Getenv("MOOD_CACHE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Mood.CacheSize = i
		}
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}
	if val := os.Getenv("LOG_FILE"); val != "" {
		config.Logging.File = val
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return config
}

func splitList(val string) []string {
	items := strings.Split(val, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}

// validateConfig validates the configuration and returns errors for invalid values
func validateConfig(config *Config) error {
	var errors []string

	// The relay fails closed per request, so a missing key is not fatal at startup
	if config.AIGateway.APIKey == "" {
		logrus.Warn("AI_GATEWAY_API_KEY is not set - chat requests will fail until it is configured")
	}

	if config.AIGateway.Model == "" {
		config.AIGateway.Model = DefaultModel
	}

	if config.AIGateway.BaseURL == "" {
		errors = append(errors, "ai_gateway.base_url must not be empty")
	}

	switch config.Database.Driver {
	case "postgres", "sqlite":
	default:
		errors = append(errors, fmt.Sprintf("DATABASE_DRIVER must be postgres or sqlite (current: %q)", config.Database.Driver))
	}

	if config.Mood.CacheSize <= 0 {
		errors = append(errors, fmt.Sprintf("MOOD_CACHE_SIZE must be positive (current: %d)", config.Mood.CacheSize))
	}

	if len(config.Server.CorsOrigins) == 0 {
		errors = append(errors, "at least one CORS origin must be configured")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// GetDatabaseDSN constructs the database connection string for the configured driver
func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path
	}

	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Backward compatibility function
func Load() (*Config, error) {
	return LoadYAML("")
}
