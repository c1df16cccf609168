package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultTypingTimeout = 3 * time.Second
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	// IdleTimeout is the window without qualifying activity after which a
	// user's presence in a room drops to idle.
	IdleTimeout time.Duration
	// TypingTimeout is how long a typing entry survives without a refresh.
	TypingTimeout time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		IdleTimeout:    DefaultIdleTimeout,
		TypingTimeout:  DefaultTypingTimeout,
	}, nil
}
