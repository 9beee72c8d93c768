package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration, loaded from a JSON file with
// environment-variable overrides applied on top.
type Config struct {
	Agent        AgentConfig        `json:"agent"`
	Conversation ConversationConfig `json:"conversation"`
	Provider     ProviderConfig     `json:"provider"`
	Embedding    EmbeddingConfig    `json:"embedding"`
	Tools        ToolsConfig        `json:"tools"`
	Heartbeat    HeartbeatConfig    `json:"heartbeat"`
	Log          LogConfig          `json:"log"`
}

type AgentConfig struct {
	Workspace     string  `json:"workspace" env:"KRISHNA_AGENT_WORKSPACE"`
	Model         string  `json:"model" env:"KRISHNA_AGENT_MODEL"`
	MaxTokens     int     `json:"max_tokens" env:"KRISHNA_AGENT_MAX_TOKENS"`
	Temperature   float64 `json:"temperature" env:"KRISHNA_AGENT_TEMPERATURE"`
	MaxIterations int     `json:"max_iterations" env:"KRISHNA_AGENT_MAX_ITERATIONS"`
	FetchWindow   int     `json:"fetch_window" env:"KRISHNA_AGENT_FETCH_WINDOW"`
}

// ConversationConfig selects the history retention strategy.
// Mode is one of "memory", "persistent", "token_aware".
type ConversationConfig struct {
	Mode             string `json:"mode" env:"KRISHNA_CONVERSATION_MODE"`
	File             string `json:"file" env:"KRISHNA_CONVERSATION_FILE"`
	MaxTokens        int    `json:"max_tokens" env:"KRISHNA_CONVERSATION_MAX_TOKENS"`
	ReserveTokens    int    `json:"reserve_tokens" env:"KRISHNA_CONVERSATION_RESERVE_TOKENS"`
	OverflowStrategy string `json:"overflow_strategy" env:"KRISHNA_CONVERSATION_OVERFLOW_STRATEGY"`
	TokenModel       string `json:"token_model" env:"KRISHNA_CONVERSATION_TOKEN_MODEL"`
}

type ProviderConfig struct {
	APIKey    string `json:"api_key" env:"KRISHNA_PROVIDER_API_KEY"`
	APIBase   string `json:"api_base" env:"KRISHNA_PROVIDER_API_BASE"`
	UserAgent string `json:"user_agent,omitempty" env:"KRISHNA_PROVIDER_USER_AGENT"`
}

type EmbeddingConfig struct {
	Enabled bool   `json:"enabled" env:"KRISHNA_EMBEDDING_ENABLED"`
	APIBase string `json:"api_base" env:"KRISHNA_EMBEDDING_API_BASE"`
	Model   string `json:"model" env:"KRISHNA_EMBEDDING_MODEL"`
}

type ToolsConfig struct {
	RestrictToWorkspace *bool `json:"restrict_to_workspace" env:"KRISHNA_TOOLS_RESTRICT_TO_WORKSPACE"`
	ShellTimeoutSeconds int   `json:"shell_timeout_seconds" env:"KRISHNA_TOOLS_SHELL_TIMEOUT_SECONDS"`
}

type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled" env:"KRISHNA_HEARTBEAT_ENABLED"`
	IntervalSeconds int    `json:"interval_seconds" env:"KRISHNA_HEARTBEAT_INTERVAL_SECONDS"`
	Cron            string `json:"cron,omitempty" env:"KRISHNA_HEARTBEAT_CRON"`
}

type LogConfig struct {
	Level string `json:"level" env:"KRISHNA_LOG_LEVEL"`
	File  string `json:"file,omitempty" env:"KRISHNA_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:     "~/.krishna/workspace",
			Model:         "us.anthropic.claude-sonnet-4-20250514-v1:0",
			MaxTokens:     4096,
			Temperature:   0.7,
			MaxIterations: 28,
			FetchWindow:   20,
		},
		Conversation: ConversationConfig{
			Mode:             "persistent",
			File:             "conversation.ndjson",
			MaxTokens:        120000,
			ReserveTokens:    500,
			OverflowStrategy: "drop_oldest",
			TokenModel:       "gpt-3.5-turbo",
		},
		Embedding: EmbeddingConfig{
			Enabled: false,
			APIBase: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Tools: ToolsConfig{
			ShellTimeoutSeconds: 60,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:         false,
			IntervalSeconds: 1800,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if parseErr := env.Parse(cfg); parseErr != nil {
				return nil, parseErr
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// WorkspacePath returns the agent workspace with ~ expanded.
func (c *Config) WorkspacePath() string {
	return expandHome(c.Agent.Workspace)
}

// ConversationFilePath resolves the durable conversation log location.
// Relative paths are anchored at the workspace.
func (c *Config) ConversationFilePath() string {
	file := c.Conversation.File
	if file == "" {
		file = "conversation.ndjson"
	}
	file = expandHome(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.WorkspacePath(), file)
}

func (c *Config) IsRestrictToWorkspace() bool {
	if c.Tools.RestrictToWorkspace == nil {
		return true
	}
	return *c.Tools.RestrictToWorkspace
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
