package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// MCPServerConfig is one entry of mcp.json's `servers` map (spec.md §6).
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	Enabled *bool             `json:"enabled"`
	Timeout int               `json:"timeout"`
}

// MCPConfig is the top-level shape of mcp.json.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `json:"servers"`
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolveEnvRefs substitutes `${VAR}` with os.Getenv(VAR); an unset variable
// resolves to the empty string rather than erroring, matching how shells
// expand an unset `${VAR}`.
func resolveEnvRefs(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarRe.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

// LoadMCPConfig reads mcp.json from workingDir, falling back to
// `~/.llama-agent/mcp.json`. A missing file is not an error: it returns a
// config with an empty server map.
func LoadMCPConfig(workingDir string) (MCPConfig, error) {
	candidates := []string{filepath.Join(workingDir, "mcp.json")}
	if home, err := HomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "mcp.json"))
	}

	var path string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			path = c
			break
		}
	}
	if path == "" {
		return MCPConfig{Servers: map[string]MCPServerConfig{}}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return MCPConfig{}, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg MCPConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return MCPConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}

	for name, server := range cfg.Servers {
		server.Command = resolveEnvRefs(server.Command)
		for i, a := range server.Args {
			server.Args[i] = resolveEnvRefs(a)
		}
		for k, v := range server.Env {
			server.Env[k] = resolveEnvRefs(v)
		}
		cfg.Servers[name] = server
	}
	return cfg, nil
}

// IsEnabled reports whether a server entry should be started: absent
// `enabled` defaults to true.
func (c MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
