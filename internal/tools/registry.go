package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/llm"
)

// Registry manages multiple MCP tool server connections.
type Registry struct {
	connections map[string]*MCPConnection // server name → connection
	toolIndex   map[string]string         // tool name → server name
	log         *zap.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		connections: make(map[string]*MCPConnection),
		toolIndex:   make(map[string]string),
		log:         log.Named("tools"),
	}
}

// Register launches an MCP tool server and adds its tools to the registry.
// Disabled servers are skipped.
func (r *Registry) Register(ctx context.Context, name string, cfg ToolServerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if _, dup := r.connections[name]; dup {
		return fmt.Errorf("tool server %s already registered", name)
	}

	env := os.Environ()
	for k, v := range cfg.Env {
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = os.Getenv(v[2 : len(v)-1])
		}
		env = append(env, k+"="+v)
	}

	conn, err := NewMCPConnection(ctx, name, cfg, env)
	if err != nil {
		return err
	}

	r.connections[name] = conn
	for _, toolName := range conn.ToolNames() {
		if owner, taken := r.toolIndex[toolName]; taken {
			r.log.Warn("tool name shadowed", zap.String("tool", toolName), zap.String("kept", owner), zap.String("server", name))
			continue
		}
		r.toolIndex[toolName] = name
	}
	r.log.Info("tool server registered", zap.String("server", name), zap.Strings("tools", conn.ToolNames()))
	return nil
}

// RegisterAll registers every configured server in name order. A server that
// fails to start does not stop the others; all failures are returned joined.
func (r *Registry) RegisterAll(ctx context.Context, cfgs map[string]ToolServerConfig) error {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := r.Register(ctx, name, cfgs[name]); err != nil {
			r.log.Warn("tool server unavailable", zap.String("server", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AllTools returns tool definitions from all registered servers, sorted by name.
func (r *Registry) AllTools() []llm.ToolDef {
	var all []llm.ToolDef
	for _, conn := range r.connections {
		for _, def := range conn.ToolDefs() {
			if r.toolIndex[def.Name] == conn.name {
				all = append(all, def)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// CallTool routes a tool call to the appropriate MCP server.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	serverName, ok := r.toolIndex[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return r.connections[serverName].CallTool(ctx, name, args)
}

// HasTool reports whether a tool with this name is registered.
func (r *Registry) HasTool(name string) bool {
	_, ok := r.toolIndex[name]
	return ok
}

// HasTools returns true if any tools are registered.
func (r *Registry) HasTools() bool {
	return len(r.toolIndex) > 0
}

// Close shuts down all MCP server connections.
func (r *Registry) Close() {
	for _, conn := range r.connections {
		conn.Close()
	}
}
