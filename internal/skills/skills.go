// Package skills discovers SKILL.md directories and parses their YAML
// front-matter (spec.md §6): prompt-time-only context, never a core
// behavior — nothing here gates tool dispatch or permissions.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// nameRe is the dir-name/skill-name grammar of spec.md §6.
var nameRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Skill is one discovered SKILL.md, front-matter plus body.
type Skill struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	License       string   `yaml:"license,omitempty"`
	Compatibility string   `yaml:"compatibility,omitempty"`
	AllowedTools  []string `yaml:"allowed-tools,omitempty"`

	Dir  string
	Body string
}

// Discover walks searchPaths (each a directory containing skill
// subdirectories) and returns every valid SKILL.md found, first-discovered-
// wins on a name collision.
func Discover(searchPaths []string) ([]Skill, error) {
	seen := make(map[string]bool)
	var out []Skill

	for _, root := range searchPaths {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue // an unreadable search root is not fatal; skills are optional
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			skillPath := filepath.Join(root, entry.Name(), "SKILL.md")
			raw, err := os.ReadFile(skillPath)
			if err != nil {
				continue
			}
			s, err := parse(raw, entry.Name())
			if err != nil {
				continue
			}
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			s.Dir = filepath.Join(root, entry.Name())
			out = append(out, s)
		}
	}
	return out, nil
}

// parse splits front-matter from body and validates the name field.
func parse(raw []byte, dirName string) (Skill, error) {
	content := string(raw)
	if !strings.HasPrefix(content, "---") {
		return Skill{}, fmt.Errorf("missing front-matter in %s", dirName)
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Skill{}, fmt.Errorf("unterminated front-matter in %s", dirName)
	}
	frontMatter := rest[:end]
	body := strings.TrimLeft(rest[end+4:], "\n")

	var s Skill
	if err := yaml.Unmarshal([]byte(frontMatter), &s); err != nil {
		return Skill{}, fmt.Errorf("parse front-matter in %s: %w", dirName, err)
	}
	s.Body = body

	if s.Name != dirName {
		return Skill{}, fmt.Errorf("skill name %q does not match directory %q", s.Name, dirName)
	}
	if !nameRe.MatchString(s.Name) || len(s.Name) > 64 {
		return Skill{}, fmt.Errorf("invalid skill name %q", s.Name)
	}
	return s, nil
}

// PromptFragment renders the discovered skills as a compact prompt section,
// a one-line summary per skill so the model knows what's available without
// paying the full body's token cost up front.
func PromptFragment(list []Skill) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available skills:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	return b.String()
}
