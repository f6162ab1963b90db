package tools

import "time"

// DefaultCallTimeout bounds a single tool call when the server config sets none.
const DefaultCallTimeout = 30 * time.Second

// ToolServerConfig describes an MCP stdio server the tutor may call.
type ToolServerConfig struct {
	Binary  string            `mapstructure:"binary"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Enabled bool              `mapstructure:"enabled"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

func (c ToolServerConfig) callTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultCallTimeout
}
