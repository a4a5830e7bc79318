package qdrant

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/poiesic/mailrag/core"
)

const (
	// DefaultHost is the Qdrant server used when Config.Host is empty.
	DefaultHost = "localhost"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// DefaultCollection holds every owner's chunks.
	DefaultCollection = "emails"

	// DefaultMaxMessageSize bounds gRPC messages in both directions.
	DefaultMaxMessageSize = 50 * 1024 * 1024
)

var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid qdrant config")

	// ErrConnectionFailed indicates the client could not reach the server.
	ErrConnectionFailed = errors.New("qdrant connection failed")
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Config holds connection settings for a Qdrant server.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Collection     string
	Dimensions     int
	MaxMessageSize int
}

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Dimensions == 0 {
		c.Dimensions = core.DefaultDimensions
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name must match %s, got %q", ErrInvalidConfig, collectionNamePattern, c.Collection)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidConfig, c.Dimensions)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	return nil
}
