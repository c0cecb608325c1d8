package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wrp1979/llama-agent/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "llama-agent",
		Short: "Local tool-using coding-assistant runtime",
		Long: `llama-agent drives a local language model through an iterative
loop that alternates generation with the execution of side-effecting tools
(shell, file read/write/edit, filename glob, and recursive sub-task
delegation), gated by a permission engine and bounded by iteration/depth
caps.

Examples:
  llama-agent                       interactive mode
  llama-agent "summarize this repo" single-prompt mode
  llama-agent serve --addr :8090    run the HTTP API`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(v, cmd)
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = applyFlags(cfg, cmd)

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if len(args) > 0 {
				return runSinglePrompt(rt, cfg, joinArgs(args))
			}
			return runREPL(rt, cfg)
		},
	}

	root.PersistentFlags().Bool("yolo", false, "Skip permission prompts entirely")
	root.PersistentFlags().Int("max-iterations", 0, "Cap on Agent Loop iterations (clamped 1..1000)")
	root.PersistentFlags().Bool("subagents", true, "Allow the task tool to delegate to subagents")
	root.PersistentFlags().Bool("no-subagents", false, "Disable the task tool entirely")
	root.PersistentFlags().Int("max-subagent-depth", 0, "Cap on nested task depth (clamped 0..5)")
	root.PersistentFlags().Bool("no-skills", false, "Disable SKILL.md discovery")
	root.PersistentFlags().Bool("no-agents-md", false, "Disable AGENTS.md discovery")
	root.PersistentFlags().String("skills-path", "", "Extra directory to search for skills")
	root.PersistentFlags().String("model-base-url", "", "Base URL of the OpenAI-compatible model server")
	root.PersistentFlags().String("model-name", "", "Model name to request")
	root.PersistentFlags().String("working-dir", "", "Working directory for tool execution")

	root.AddCommand(newServeCommand(v))
	root.AddCommand(newVersionCommand())

	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	_ = v.BindPFlag("yolo", cmd.Flags().Lookup("yolo"))
	_ = v.BindPFlag("max_iterations", cmd.Flags().Lookup("max-iterations"))
	_ = v.BindPFlag("subagents", cmd.Flags().Lookup("subagents"))
	_ = v.BindPFlag("max_subagent_depth", cmd.Flags().Lookup("max-subagent-depth"))
	_ = v.BindPFlag("no_skills", cmd.Flags().Lookup("no-skills"))
	_ = v.BindPFlag("no_agents_md", cmd.Flags().Lookup("no-agents-md"))
	_ = v.BindPFlag("skills_path", cmd.Flags().Lookup("skills-path"))
	_ = v.BindPFlag("model_base_url", cmd.Flags().Lookup("model-base-url"))
	_ = v.BindPFlag("model_name", cmd.Flags().Lookup("model-name"))
	_ = v.BindPFlag("working_dir", cmd.Flags().Lookup("working-dir"))
}

// applyFlags layers in flags cobra/viper didn't bind directly (booleans
// whose CLI spelling splits "enable"/"disable" across two flags).
func applyFlags(cfg config.Config, cmd *cobra.Command) config.Config {
	if noSub, _ := cmd.Flags().GetBool("no-subagents"); noSub {
		cfg.Subagents = false
	}
	if wd, _ := cmd.Flags().GetString("working-dir"); wd != "" {
		cfg.WorkingDir = wd
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir, _ = os.Getwd()
	}
	return cfg
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func runSinglePrompt(rt *runtime, cfg config.Config, prompt string) error {
	l, _ := rt.newRootLoop(cfg, nil)
	res, err := l.Run(context.Background(), prompt)
	if err != nil {
		return err
	}
	fmt.Println(res.FinalResponse)
	if res.StopReason != "COMPLETED" {
		return fmt.Errorf("stopped: %s", res.StopReason)
	}
	return nil
}
