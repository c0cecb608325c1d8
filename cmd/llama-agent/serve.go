package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
	"github.com/wrp1979/llama-agent/internal/config"
	"github.com/wrp1979/llama-agent/internal/session"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (spec.md §6)",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(v, cmd.Root())
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = applyFlags(cfg, cmd.Root())
			if addr != "" {
				cfg.ServerAddr = addr
			}
			if cfg.ServerAddr == "" {
				cfg.ServerAddr = ":8090"
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			mgr := session.New(rt.registry, rt.llmClient, rt.runner, rt.tracerProv.Tracer(), rt.log, rt.metricsReg)
			router := newRouter(rt, mgr)

			rt.log.Info("listening on %s", cfg.ServerAddr)
			return router.Run(cfg.ServerAddr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (default :8090)")
	return cmd
}

func newRouter(rt *runtime, mgr *session.Manager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(rt.metricsReg.Gatherer(), promhttp.HandlerOpts{})))

	v1 := r.Group("/v1/agent")
	{
		v1.POST("/session", createSessionHandler(rt, mgr))
		v1.GET("/session/:id", getSessionHandler(mgr))
		v1.POST("/session/:id/chat", chatHandler(mgr))
		v1.GET("/session/:id/permissions", listPermissionsHandler(mgr))
		v1.POST("/permission/:id", resolvePermissionHandler(mgr))
		v1.GET("/tools", listToolsHandler(rt))
		v1.GET("/session/:id/stats", statsHandler(mgr))
	}
	return r
}

type createSessionRequest struct {
	Tools          []string `json:"tools"`
	Yolo           bool     `json:"yolo"`
	MaxIterations  int      `json:"max_iterations"`
	WorkingDir     string   `json:"working_dir"`
	EnableSkills   *bool    `json:"enable_skills"`
	SkillsPaths    []string `json:"skills_paths"`
	EnableAgentsMD *bool    `json:"enable_agents_md"`
}

func createSessionHandler(rt *runtime, mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		workingDir := req.WorkingDir
		if workingDir == "" {
			workingDir = rt.cfg.WorkingDir
		}

		maxDepth := rt.cfg.MaxSubagentDepth
		if !rt.cfg.Subagents {
			maxDepth = 0
		}

		s := mgr.Create(session.CreateParams{
			AllowedTools:  req.Tools,
			Yolo:          req.Yolo,
			MaxIterations: req.MaxIterations,
			WorkingDir:    workingDir,
			MaxDepth:      maxDepth,
			ToolTimeoutMS: rt.cfg.ToolTimeoutMS,
			SystemPrompt:  rt.systemPromptBase,
		})
		c.JSON(http.StatusCreated, gin.H{"session_id": s.ID})
	}
}

func getSessionHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := mgr.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id":     s.ID,
			"state":          s.State(),
			"message_count":  s.MessageCount(),
			"stats":          s.Stats(),
		})
	}
}

type chatRequest struct {
	Content string `json:"content"`
}

// chatHandler opens a server-sent-event stream with event names matching
// the §4.6 variants in snake_case.
func chatHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := mgr.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		events := make(chan ports.Event, 64)
		done := make(chan struct{})

		go func() {
			defer close(done)
			reqCtx := c.Request.Context()
			_, err := mgr.SendMessage(reqCtx, s, req.Content, func(ev ports.Event) {
				select {
				case events <- ev:
				case <-reqCtx.Done():
				}
			})
			if err != nil {
				select {
				case events <- ports.Event{Kind: ports.EventError, Message: err.Error()}:
				case <-reqCtx.Done():
				}
			}
		}()

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(sseEventName(ev.Kind), ev)
				return true
			case <-done:
				for {
					select {
					case ev := <-events:
						c.SSEvent(sseEventName(ev.Kind), ev)
					default:
						return false
					}
				}
			}
		})
	}
}

func sseEventName(kind ports.EventKind) string {
	switch kind {
	case ports.EventTextDelta:
		return "text_delta"
	case ports.EventReasoningDelta:
		return "reasoning_delta"
	case ports.EventToolStart:
		return "tool_start"
	case ports.EventToolResult:
		return "tool_result"
	case ports.EventPermissionAsk:
		return "permission_required"
	case ports.EventPermissionResolve:
		return "permission_resolved"
	case ports.EventIterationStart:
		return "iteration_start"
	case ports.EventCompleted:
		return "completed"
	case ports.EventError:
		return "error"
	default:
		return "event"
	}
}

func listPermissionsHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := mgr.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": s.AsyncQueue().Pending()})
	}
}

type resolvePermissionRequest struct {
	Allow bool   `json:"allow"`
	Scope string `json:"scope"`
}

func resolvePermissionHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resolvePermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp := ports.RespDenyOnce
		if req.Allow {
			resp = ports.RespAllowOnce
		}
		scope := ports.ScopeOnce
		if req.Scope == "session" {
			scope = ports.ScopeSession
			if req.Allow {
				resp = ports.RespAllowAlways
			} else {
				resp = ports.RespDenyAlways
			}
		}

		id := c.Param("id")
		found := false
		mgr.EachSession(func(s *session.Session) {
			if _, ok := s.AsyncQueue().Pending()[id]; ok {
				found = true
				s.AsyncQueue().Respond(id, resp, scope)
			}
		})
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "permission request not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func listToolsHandler(rt *runtime) gin.HandlerFunc {
	return func(c *gin.Context) {
		var out []gin.H
		for _, t := range rt.registry.List() {
			out = append(out, gin.H{"name": t.Name(), "description": t.Description(), "parameters": t.ParametersSchema()})
		}
		c.JSON(http.StatusOK, gin.H{"tools": out})
	}
}

func statsHandler(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := mgr.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, s.Stats())
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("llama-agent 0.1.0")
		},
	}
}
