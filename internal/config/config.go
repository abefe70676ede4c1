package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	DBAdapter     string
	SQLiteFile    string
	SessionSecret string
	FrontendURL   string
	SiteName      string
	LogLevel      string
	// Magic link issuance throttle, per destination address
	LinksPerMinute int
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		Port:           getenv("PORT", "8080"),
		DBAdapter:      getenv("DB_ADAPTER", "postgres"),
		SQLiteFile:     getenv("SQLITE_FILE", "./data/albumauth.db"),
		SessionSecret:  getenv("SESSION_SECRET", "change-me"),
		FrontendURL:    strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:5173"), "/"),
		SiteName:       getenv("SITE_NAME", "Album"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		PostgresDSN:    getenv("POSTGRES_DSN", ""),
		PostgresHost:   getenv("POSTGRES_HOST", getenv("DB_HOST", "localhost")),
		PostgresPort:   getenv("POSTGRES_PORT", getenv("DB_PORT", "5432")),
		PostgresUser:   getenv("POSTGRES_USER", getenv("DB_USER", "album")),
		PostgresPassword: getenv("POSTGRES_PASSWORD", getenv("DB_PASSWORD", "")),
		PostgresDB:      getenv("POSTGRES_DB", getenv("DB_NAME", "albumauth")),
		PostgresSSLMode: getenv("POSTGRES_SSLMODE", getenv("DB_SSLMODE", "disable")),
	}

	perMinute := getenv("LINKS_PER_MINUTE", "3")
	n, err := strconv.Atoi(perMinute)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid LINKS_PER_MINUTE: %s", perMinute)
	}
	c.LinksPerMinute = n

	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" && c.SQLiteFile == "" {
		return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
	}

	// Rotating the secret invalidates every outstanding token, so a
	// production deploy must pin a real one.
	env := strings.ToLower(getenv("ENV", ""))
	if env == "production" || env == "prod" {
		if c.SessionSecret == "" || c.SessionSecret == "change-me" {
			return nil, errors.New("SESSION_SECRET must be set in production")
		}
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
