// Package templates provides starter policies for toolgate init.
//
// Three templates are built in: development, production and strict. More can
// be placed as *.toml files in a directory and found with Discover; a
// directory template shadows a built-in of the same name.
package templates

import (
	"bufio"
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"radium-hq/toolgate/pkg/policy/engine"
)

//go:embed builtin/*.toml
var builtinFS embed.FS

// ErrNotFound is returned by Lookup for an unknown template name.
var ErrNotFound = errors.New("policy template not found")

// Template is a policy file offered as a starting point.
type Template struct {
	Name        string
	Description string

	// Source is "builtin" or the file the template was read from.
	Source string

	Content []byte
}

// Parse parses and validates the template.
func (t Template) Parse() (*engine.PolicyConfig, error) {
	cfg, err := engine.ParseConfig(t.Content)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", t.Name, err)
	}
	return cfg, nil
}

// Validate reports whether the template is a valid policy.
func (t Template) Validate() error {
	_, err := t.Parse()
	return err
}

// Builtin returns the embedded templates sorted by name.
func Builtin() []Template {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		panic(err)
	}

	out := make([]Template, 0, len(entries))
	for _, e := range entries {
		data, err := builtinFS.ReadFile("builtin/" + e.Name())
		if err != nil {
			panic(err)
		}
		out = append(out, newTemplate(e.Name(), "builtin", data))
	}
	return out
}

// Discover returns the *.toml templates in dir sorted by name. A missing
// directory yields no templates.
func Discover(dir string) ([]Template, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory %q: %w", dir, err)
	}

	var out []Template
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %q: %w", path, err)
		}
		out = append(out, newTemplate(e.Name(), path, data))
	}
	return out, nil
}

// All returns the built-in templates merged with those in dir, which take
// precedence by name. An empty dir returns the built-ins.
func All(dir string) ([]Template, error) {
	byName := make(map[string]Template)
	for _, t := range Builtin() {
		byName[t.Name] = t
	}
	if dir != "" {
		found, err := Discover(dir)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			byName[t.Name] = t
		}
	}

	out := make([]Template, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Lookup finds a template by name in dir or among the built-ins.
func Lookup(name, dir string) (Template, error) {
	all, err := All(dir)
	if err != nil {
		return Template{}, err
	}
	for _, t := range all {
		if t.Name == name {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Merge appends the template rules whose names are not already used by
// existing and returns the merged policy with the names of the added rules.
// The approval mode of existing is kept.
func Merge(existing, template engine.PolicyConfig) (engine.PolicyConfig, []string) {
	seen := make(map[string]bool, len(existing.Rules))
	for _, r := range existing.Rules {
		seen[r.Name] = true
	}

	merged := engine.PolicyConfig{
		ApprovalMode: existing.ApprovalMode,
		Rules:        append([]engine.Rule(nil), existing.Rules...),
	}
	if merged.ApprovalMode == "" {
		merged.ApprovalMode = template.ApprovalMode
	}

	var added []string
	for _, r := range template.Rules {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		merged.Rules = append(merged.Rules, r)
		added = append(added, r.Name)
	}
	return merged, added
}

func newTemplate(file, source string, data []byte) Template {
	name := strings.TrimSuffix(file, filepath.Ext(file))
	return Template{
		Name:        name,
		Description: describe(name, data),
		Source:      source,
		Content:     data,
	}
}

// describe returns the first comment line, or a generic description.
func describe(name string, data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		if d := strings.TrimSpace(strings.TrimLeft(line, "#")); d != "" {
			return d
		}
	}
	return name + " policy template"
}
