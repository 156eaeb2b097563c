package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Settings is the process configuration, read from the environment (and .env when present).
type Settings struct {
	Port           int           `envconfig:"PORT" default:"8080"`
	DBDriver       string        `envconfig:"DB_DRIVER" default:"postgres"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	MongoURI       string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase  string        `envconfig:"MONGO_DATABASE" default:"ridehub"`
	StoreTimeout   time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	AllowedOrigins string        `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	SocketBuffer   int           `envconfig:"SOCKET_BUFFER" default:"256"`

	BrevoAPIKey     string `envconfig:"BREVO_API_KEY"`
	EmailSender     string `envconfig:"EMAIL_SENDER"`
	EmailSenderName string `envconfig:"EMAIL_SENDER_NAME"`

	UnreadDigestSchedule string        `envconfig:"UNREAD_DIGEST_SCHEDULE" default:"@every 1h"`
	UnreadDigestAge      time.Duration `envconfig:"UNREAD_DIGEST_AGE" default:"24h"`
}

// Load reads .env (optional) and decodes the environment into Settings.
func Load() (*Settings, error) {
	// a missing .env is fine, the process environment is the fallback
	_ = godotenv.Load(".env")

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	if s.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET must not be empty")
	}
	switch s.DBDriver {
	case DriverPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when DB_DRIVER=%s", DriverPostgres)
		}
	case DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", s.DBDriver)
	}
	if s.SocketBuffer < 1 {
		return fmt.Errorf("config: SOCKET_BUFFER must be positive, got %d", s.SocketBuffer)
	}
	return nil
}

// Origins returns ALLOWED_ORIGINS in the comma separated form fiber's cors middleware expects.
func (s *Settings) Origins() string {
	parts := strings.Split(s.AllowedOrigins, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

// EmailEnabled reports whether every Brevo setting is present.
func (s *Settings) EmailEnabled() bool {
	return s.BrevoAPIKey != "" && s.EmailSender != "" && s.EmailSenderName != ""
}
