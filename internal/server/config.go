// Package server provides configuration helpers that define runtime defaults
// and environment overrides for the chat hub.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort             = ":8080"
	defaultMaxMessageSize   = 4096
	defaultSendBufferSize   = 256
	defaultPingInterval     = 30 * time.Second
	defaultPingWriteTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultLogLevel         = "info"
)

// Config holds the server configuration settings.
type Config struct {
	Port             string
	AllowedOrigins   []string
	MaxMessageSize   int64
	SendBufferSize   int
	PingInterval     time.Duration
	PingWriteTimeout time.Duration
	WriteTimeout     time.Duration
	LogLevel         string
}

func defaultConfig() Config {
	return Config{
		Port:             defaultPort,
		AllowedOrigins:   []string{"*"},
		MaxMessageSize:   defaultMaxMessageSize,
		SendBufferSize:   defaultSendBufferSize,
		PingInterval:     defaultPingInterval,
		PingWriteTimeout: defaultPingWriteTimeout,
		WriteTimeout:     defaultWriteTimeout,
		LogLevel:         defaultLogLevel,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	// PORT wins over SERVER_PORT
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = normalizePort(port)
	} else if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = normalizePort(port)
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	if interval := os.Getenv("PING_INTERVAL"); interval != "" {
		cfg.PingInterval = parseSeconds(interval, cfg.PingInterval)
	}

	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	cfg.sanitize()
	return &cfg
}

// sanitize replaces unusable values with defaults.
func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PingWriteTimeout <= 0 {
		c.PingWriteTimeout = defaultPingWriteTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// normalizePort accepts "8080" or ":8080" and always returns a listen address.
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return defaultPort
	}
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
