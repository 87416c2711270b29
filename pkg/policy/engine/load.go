package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
)

// PolicyConfig is the policy file document.
type PolicyConfig struct {
	ApprovalMode ApprovalMode `toml:"approval_mode" json:"approval_mode"`
	Rules        []Rule       `toml:"rules" json:"rules"`
}

// fileRule mirrors Rule with optional fields so defaults can be applied.
type fileRule struct {
	Name        string    `toml:"name"`
	ToolPattern string    `toml:"tool_pattern"`
	ArgPattern  *string   `toml:"arg_pattern"`
	Action      *Action   `toml:"action"`
	Priority    *Priority `toml:"priority"`
	Reason      string    `toml:"reason"`
}

type fileConfig struct {
	ApprovalMode *ApprovalMode `toml:"approval_mode"`
	Rules        []fileRule    `toml:"rules"`
}

// LoadFile reads, parses and validates a policy file.
func LoadFile(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// ParseConfig parses and validates a TOML policy. Unknown keys are rejected.
// A missing approval_mode defaults to ask and a missing priority to user.
func ParseConfig(data []byte) (*PolicyConfig, error) {
	var raw fileConfig

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, &ParseError{Cause: err}
	}

	cfg := &PolicyConfig{ApprovalMode: ModeAsk}
	if raw.ApprovalMode != nil {
		cfg.ApprovalMode = *raw.ApprovalMode
	}

	var missing []string
	for i, fr := range raw.Rules {
		r := Rule{
			Name:        fr.Name,
			ToolPattern: fr.ToolPattern,
			Priority:    PriorityUser,
			Reason:      fr.Reason,
		}
		if fr.Action == nil {
			missing = append(missing, fmt.Sprintf("rule %d (%q): action is required", i, fr.Name))
		} else {
			r.Action = *fr.Action
		}
		if fr.Priority != nil {
			r.Priority = *fr.Priority
		}
		// Rule reads an empty ArgPattern as unconstrained.
		if fr.ArgPattern != nil {
			if *fr.ArgPattern == "" {
				missing = append(missing, fmt.Sprintf("rule %d (%q): arg_pattern must not be empty (omit it to match any arguments)", i, fr.Name))
			}
			r.ArgPattern = *fr.ArgPattern
		}
		cfg.Rules = append(cfg.Rules, r)
	}

	if err := cfg.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Errors = append(missing, ve.Errors...)
			return nil, ve
		}
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Errors: missing}
	}

	return cfg, nil
}

// Validate checks that rule names are present and unique, that every rule
// has a tool pattern and a known action, and that every pattern compiles.
func (c *PolicyConfig) Validate() error {
	var errs []string

	if _, err := ParseApprovalMode(string(c.ApprovalMode)); err != nil {
		errs = append(errs, err.Error())
	}

	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		label := fmt.Sprintf("rule %d (%q)", i, r.Name)

		if r.Name == "" {
			errs = append(errs, label+": name is required")
		} else if seen[r.Name] {
			errs = append(errs, label+": duplicate rule name")
		}
		seen[r.Name] = true

		if r.ToolPattern == "" {
			errs = append(errs, label+": tool_pattern is required")
		} else if err := ValidatePattern(r.ToolPattern); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid tool_pattern %q: %v", label, r.ToolPattern, err))
		}

		if r.HasArgPattern() {
			if err := ValidatePattern(r.ArgPattern); err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid arg_pattern %q: %v", label, r.ArgPattern, err))
			}
		}

		if r.Action != "" {
			if _, err := ParseAction(string(r.Action)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", label, err))
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// MarshalConfig encodes a policy as TOML in the policy file format.
func MarshalConfig(c PolicyConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(false)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes a policy file atomically. It returns ErrPolicyLocked while
// another writer holds the sibling ".lock" file.
func WriteFile(path string, c PolicyConfig) error {
	data, err := MarshalConfig(c)
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire policy file lock: %w", err)
	}
	if !locked {
		return ErrPolicyLocked
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace policy file: %w", err)
	}
	return nil
}
