// Package config loads the conversation configuration from YAML and
// bridges it onto the session and transport options.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/velalabs/vela-core/core/transport"
)

// Config is the complete conversation configuration.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
}

// SessionConfig configures the remote conversational session.
type SessionConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Model            string        `yaml:"model"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	SystemContext    string        `yaml:"system_context"`
	SearchGrounding  bool          `yaml:"search_grounding"`
	TranscribeInput  bool          `yaml:"transcribe_input"`
	TranscribeOutput bool          `yaml:"transcribe_output"`
	CloseGracePeriod time.Duration `yaml:"close_grace_period"`
}

// AudioConfig configures the local capture pipeline.
type AudioConfig struct {
	FrameSize     int `yaml:"frame_size"`     // samples per outbound chunk
	QueueCapacity int `yaml:"queue_capacity"` // chunks buffered before dropping
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			APIKeyEnv:        "GEMINI_API_KEY",
			TranscribeInput:  true,
			TranscribeOutput: true,
		},
		Audio: AudioConfig{
			FrameSize:     4096,
			QueueCapacity: 32,
		},
	}
}

// Load reads and parses the configuration file. Fields left unset fall
// back to Default values before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for values the session cannot run
// with.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.APIKeyEnv == "" {
		return fmt.Errorf("api_key_env cannot be empty")
	}

	if s.CloseGracePeriod < 0 {
		return fmt.Errorf("close_grace_period cannot be negative, got %s", s.CloseGracePeriod)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.FrameSize < 1 {
		return fmt.Errorf("frame_size must be at least 1 sample, got %d", a.FrameSize)
	}

	if a.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1 chunk, got %d", a.QueueCapacity)
	}

	return nil
}

// ConnectOptions translates the session section into transport connect
// options. The API key is resolved from the environment variable named
// by api_key_env at call time, never stored in the file.
func (s *SessionConfig) ConnectOptions() []transport.ConnectOption {
	var opts []transport.ConnectOption

	if s.Endpoint != "" {
		opts = append(opts, transport.WithEndpoint(s.Endpoint))
	}
	if s.Model != "" {
		opts = append(opts, transport.WithModel(s.Model))
	}
	if key := os.Getenv(s.APIKeyEnv); key != "" {
		opts = append(opts, transport.WithAPIKey(key))
	}
	if s.SystemContext != "" {
		opts = append(opts, transport.WithSystemContext(s.SystemContext))
	}
	if s.SearchGrounding {
		opts = append(opts, transport.WithSearchGrounding())
	}
	opts = append(opts, transport.WithTranscription(s.TranscribeInput, s.TranscribeOutput))
	if s.CloseGracePeriod > 0 {
		opts = append(opts, transport.WithCloseGracePeriod(s.CloseGracePeriod))
	}

	return opts
}
