// Package config loads the runtime's layered configuration (SPEC_FULL.md
// §4.8): flags override environment, environment overrides a
// config file at `~/.llama-agent/config.json` or `./config.json`,
// following the teacher's viper-over-cobra convention (cmd/cobra_cli.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the resolved set of Agent Loop / tool / permission knobs, after
// flags, environment, and file layers are merged.
type Config struct {
	WorkingDir      string `mapstructure:"working_dir"`
	MaxIterations   int    `mapstructure:"max_iterations"`
	ToolTimeoutMS   int    `mapstructure:"tool_timeout_ms"`
	Verbose         bool   `mapstructure:"verbose"`
	Yolo            bool   `mapstructure:"yolo"`
	Subagents       bool   `mapstructure:"subagents"`
	MaxSubagentDepth int   `mapstructure:"max_subagent_depth"`
	NoSkills        bool   `mapstructure:"no_skills"`
	NoAgentsMD      bool   `mapstructure:"no_agents_md"`
	SkillsPath      string `mapstructure:"skills_path"`
	ModelBaseURL    string `mapstructure:"model_base_url"`
	ModelName       string `mapstructure:"model_name"`
	ServerAddr      string `mapstructure:"server_addr"`
}

// Default returns the configuration's baked-in defaults, applied before any
// layer is merged in.
func Default() Config {
	wd, _ := os.Getwd()
	return Config{
		WorkingDir:       wd,
		MaxIterations:    50,
		ToolTimeoutMS:    120_000,
		Subagents:        true,
		MaxSubagentDepth: 1,
		ModelBaseURL:     "http://127.0.0.1:8080",
	}
}

// HomeDir returns `~/.llama-agent`, creating it if missing.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".llama-agent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Load builds the layered configuration: Default() < config file <
// LLAMA_AGENT_* environment < whatever the caller already bound onto v via
// flags (the CLI binds cobra flags onto the same viper instance before
// calling Load, matching the teacher's viper.BindPFlag convention).
func Load(v *viper.Viper) (Config, error) {
	def := Default()
	v.SetDefault("working_dir", def.WorkingDir)
	v.SetDefault("max_iterations", def.MaxIterations)
	v.SetDefault("tool_timeout_ms", def.ToolTimeoutMS)
	v.SetDefault("subagents", def.Subagents)
	v.SetDefault("max_subagent_depth", def.MaxSubagentDepth)
	v.SetDefault("model_base_url", def.ModelBaseURL)

	v.SetConfigName("config")
	v.SetConfigType("json")
	if home, err := HomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("LLAMA_AGENT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.MaxIterations = clamp(cfg.MaxIterations, 1, 1000)
	cfg.MaxSubagentDepth = clamp(cfg.MaxSubagentDepth, 0, 5)
	return cfg, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
