// Package config reads the process configuration from environment
// variables, with working defaults for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Config collects everything the binary needs at startup.
type Config struct {
	ListenAddr string
	DBPath     string
	DavPrefix  string
	LogLevel   slog.Level

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	WhatsAppURL string
}

// FromEnv builds a Config from the environment.
func FromEnv() Config {
	return Config{
		ListenAddr: getenv("AGENDA_LISTEN_ADDR", ":8000"),
		DBPath:     getenv("AGENDA_DB_PATH", "agenda.db"),
		DavPrefix:  getenv("AGENDA_DAV_PREFIX", "/dav"),
		LogLevel:   parseLevel(getenv("AGENDA_LOG_LEVEL", "info")),

		SMTPHost:     getenv("AGENDA_SMTP_HOST", ""),
		SMTPPort:     getenvInt("AGENDA_SMTP_PORT", 587),
		SMTPUsername: getenv("AGENDA_SMTP_USERNAME", ""),
		SMTPPassword: getenv("AGENDA_SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("AGENDA_SMTP_FROM", ""),

		WhatsAppURL: getenv("AGENDA_WHATSAPP_URL", ""),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
