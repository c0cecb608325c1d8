package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wrp1979/llama-agent/internal/agent"
	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/agent/subagent"
	"github.com/wrp1979/llama-agent/internal/agentsmd"
	"github.com/wrp1979/llama-agent/internal/approval"
	"github.com/wrp1979/llama-agent/internal/config"
	"github.com/wrp1979/llama-agent/internal/llm"
	"github.com/wrp1979/llama-agent/internal/logging"
	"github.com/wrp1979/llama-agent/internal/mcp"
	"github.com/wrp1979/llama-agent/internal/metrics"
	"github.com/wrp1979/llama-agent/internal/obs"
	"github.com/wrp1979/llama-agent/internal/skills"
	"github.com/wrp1979/llama-agent/internal/tools"
	"github.com/wrp1979/llama-agent/internal/tools/builtin"
)

// runtime bundles the process-wide singletons every session (CLI or HTTP)
// shares: the tool registry, the model client, the tracer, and the MCP
// clients kept alive for the life of the process (spec.md §9's "process-wide
// state with init on first use and teardown at process exit").
type runtime struct {
	cfg        config.Config
	log        logging.Logger
	registry   *tools.Registry
	llmClient  llm.Client
	tracerProv *obs.Provider
	runner     *subagent.Runner
	metricsReg *metrics.Registry
	consoleMu  *sync.Mutex
	permission *approval.Engine
	driver     ports.PermissionDriver

	mcpClients []*mcp.Client

	systemPromptBase string
}

func newRuntime(cfg config.Config) (*runtime, error) {
	log := logging.New("llama-agent")

	registry := tools.New(log)
	registerBuiltins(registry)

	mcpClients, err := wireMCPTools(cfg, registry, log)
	if err != nil {
		log.Warn("MCP wiring failed: %v", err)
	}

	llmClient := llm.NewHTTPClient(llm.HTTPConfig{
		BaseURL: cfg.ModelBaseURL,
		Model:   cfg.ModelName,
	})

	tracerProv, err := obs.NewProvider(context.Background(), obs.TracingConfig{Enabled: false})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	consoleMu := &sync.Mutex{}
	permission := approval.New(cfg.WorkingDir, cfg.Yolo)
	driver := ports.PermissionDriver(approval.NewTTYPrompter())

	runner := subagent.New(registry, llmClient, permission, driver, tracerProv.Tracer(), log, consoleMu)

	metricsReg := metrics.New()

	systemPrompt := buildSystemPrompt(cfg, log)

	return &runtime{
		cfg: cfg, log: log, registry: registry, llmClient: llmClient,
		tracerProv: tracerProv, runner: runner, metricsReg: metricsReg,
		consoleMu: consoleMu, permission: permission, driver: driver,
		mcpClients: mcpClients, systemPromptBase: systemPrompt,
	}, nil
}

func (rt *runtime) Close() {
	for _, c := range rt.mcpClients {
		_ = c.Stop()
	}
	_ = rt.tracerProv.Shutdown(context.Background())
}

func registerBuiltins(registry *tools.Registry) {
	for _, t := range []ports.ToolDef{
		builtin.NewBash(),
		builtin.NewRead(),
		builtin.NewWrite(),
		builtin.NewEditColor(),
		builtin.NewGlob(),
		builtin.NewTask(),
	} {
		_ = registry.Register(t)
	}
}

// wireMCPTools starts every enabled mcp.json server concurrently — each
// child process's own startup handshake dominates the wall-clock cost, so
// a bounded errgroup brings multi-server startup down to the slowest one
// instead of their sum — and registers its tool catalog as
// mcp__<server>__<tool> entries (spec.md §6).
func wireMCPTools(cfg config.Config, registry *tools.Registry, log logging.Logger) ([]*mcp.Client, error) {
	mcpCfg, err := config.LoadMCPConfig(cfg.WorkingDir)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var clients []*mcp.Client

	g := new(errgroup.Group)
	g.SetLimit(4)
	for name, server := range mcpCfg.Servers {
		if !server.IsEnabled() {
			continue
		}
		name, server := name, server
		g.Go(func() error {
			client, err := startMCPServer(name, server, registry, log)
			if err != nil {
				log.Warn("MCP server %q failed to start: %v", name, err)
				return nil
			}
			mu.Lock()
			clients = append(clients, client)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // individual failures are logged and skipped, never fatal

	return clients, nil
}

func startMCPServer(name string, server config.MCPServerConfig, registry *tools.Registry, log logging.Logger) (*mcp.Client, error) {
	pm := mcp.NewProcessManager(mcp.ProcessConfig{Command: server.Command, Args: server.Args, Env: server.Env}, log)
	client := mcp.NewClient(name, pm, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := client.Start(ctx)
	cancel()
	if err != nil {
		return nil, err
	}

	toolsCtx, toolsCancel := context.WithTimeout(context.Background(), 10*time.Second)
	schemas, err := client.ListTools(toolsCtx)
	toolsCancel()
	if err != nil {
		_ = client.Stop()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	for _, schema := range schemas {
		_ = registry.Register(mcp.NewToolAdapter(name, client, schema))
	}
	return client, nil
}

// buildSystemPrompt folds AGENTS.md and skills discovery into the base
// prompt every root loop starts from (spec.md §6's "prompt-time-only"
// contributions).
func buildSystemPrompt(cfg config.Config, log logging.Logger) string {
	base := "You are llama-agent, a local coding assistant. Use the available tools to inspect and modify the project; ask before anything destructive unless running in yolo mode."

	if !cfg.NoAgentsMD {
		content, warnings, err := agentsmd.Load(cfg.WorkingDir)
		if err != nil {
			log.Warn("AGENTS.md discovery failed: %v", err)
		}
		for _, w := range warnings {
			log.Warn("%s", w)
		}
		if content != "" {
			base += "\n\n" + content
		}
	}

	if !cfg.NoSkills {
		paths := []string{filepath.Join(cfg.WorkingDir, ".llama-agent", "skills")}
		if cfg.SkillsPath != "" {
			paths = append(paths, cfg.SkillsPath)
		}
		if home, err := config.HomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, "skills"))
		}
		discovered, err := skills.Discover(paths)
		if err != nil {
			log.Warn("skill discovery failed: %v", err)
		}
		if frag := skills.PromptFragment(discovered); frag != "" {
			base += "\n\n" + frag
		}
	}

	return base
}

// newRootLoop builds the single root Agent Loop a CLI invocation drives: one
// instance for a single-prompt call, or one instance reused across every
// turn of the REPL so conversation history survives between prompts.
// interrupt is returned alongside so the caller can wire ESC/Ctrl-C into it.
func (rt *runtime) newRootLoop(cfg config.Config, sink ports.EventSink) (*agent.Loop, *atomic.Bool) {
	interrupt := &atomic.Bool{}
	maxDepth := cfg.MaxSubagentDepth
	if !cfg.Subagents {
		maxDepth = 0
	}

	subagentHandle := rt.runner.ForDepth(0, maxDepth, rt.systemPromptBase, cfg.WorkingDir, "", cfg.ToolTimeoutMS, interrupt)

	loopCfg := agent.Config{
		WorkingDir:    cfg.WorkingDir,
		MaxIterations: cfg.MaxIterations,
		ToolTimeoutMS: cfg.ToolTimeoutMS,
		Verbose:       cfg.Verbose,
		Yolo:          cfg.Yolo,
		MaxDepth:      maxDepth,
	}

	var tracer trace.Tracer
	if rt.tracerProv != nil {
		tracer = rt.tracerProv.Tracer()
	}

	l := agent.New(loopCfg, rt.systemPromptBase, rt.registry, rt.llmClient, rt.permission, rt.driver, subagentHandle, tracer, rt.log, interrupt, sink)
	return l, interrupt
}
