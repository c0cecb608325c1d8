// Package subagent implements the Subagent Runner (spec.md §4.4): it builds
// child Agent Loops with a restricted tool set, drives them synchronously or
// in the background, and reports results back through ports.SubagentHandle.
package subagent

import "strings"

// Type enumerates the fixed subagent kinds of spec.md §3.
type Type string

const (
	TypeExplore Type = "explore"
	TypePlan    Type = "plan"
	TypeGeneral Type = "general"
	TypeBash    Type = "bash"
)

// typeConfig is a fixed record per SubagentType: display metadata, allowed
// tools, and (for EXPLORE) a read-only bash-prefix allow-list.
type typeConfig struct {
	DisplayName   string
	AllowedTools  []string
	BashPrefixes  []string // only EXPLORE; nil means "no restriction beyond AllowedTools"
	MaxIterations int
	Guidelines    string
}

// exploreBashPrefixes mirrors approval.safeBashPrefixes, minus "type ", for
// the EXPLORE subagent's read-only command allow-list (spec.md §3).
var exploreBashPrefixes = []string{
	"ls", "cat ", "head ", "tail ", "grep ", "find ", "wc ", "diff ", "pwd",
	"git status", "git log", "git diff", "git branch", "echo ", "which ", "file ",
}

var registry = map[Type]typeConfig{
	TypeExplore: {
		DisplayName:   "Explore",
		AllowedTools:  []string{"bash", "read", "glob"},
		BashPrefixes:  exploreBashPrefixes,
		MaxIterations: 20,
		Guidelines:    "You investigate the codebase read-only. Do not modify any file. Report findings concisely, with file paths and line numbers.",
	},
	TypePlan: {
		DisplayName:   "Plan",
		AllowedTools:  []string{"read", "glob"},
		MaxIterations: 15,
		Guidelines:    "You produce a written plan only. Do not execute commands or edit files; read what you need and return a numbered plan.",
	},
	TypeGeneral: {
		DisplayName:   "General",
		AllowedTools:  []string{"bash", "read", "write", "edit", "glob", "task"},
		MaxIterations: 30,
		Guidelines:    "You may use the full tool set to complete the delegated task end-to-end.",
	},
	TypeBash: {
		DisplayName:   "Bash",
		AllowedTools:  []string{"bash"},
		MaxIterations: 10,
		Guidelines:    "You operate exclusively through the shell. Prefer the smallest command that accomplishes the task.",
	},
}

// ParseType normalizes a user/model-supplied subagent_type string.
func ParseType(raw string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeExplore:
		return TypeExplore, true
	case TypePlan:
		return TypePlan, true
	case TypeGeneral:
		return TypeGeneral, true
	case TypeBash:
		return TypeBash, true
	default:
		return "", false
	}
}

func configFor(t Type) typeConfig { return registry[t] }
