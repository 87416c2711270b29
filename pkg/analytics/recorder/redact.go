package recorder

import (
	"regexp"
	"strings"
)

// Redacted replaces secret values.
const Redacted = "[REDACTED]"

// secretAssignment matches KEY=value and --key=value where the key names a
// credential.
var secretAssignment = regexp.MustCompile(`(?i)^(-{0,2}[a-z0-9_.-]*(?:password|passwd|secret|token|api[_-]?key|access[_-]?key|credential)[a-z0-9_.-]*=)(.+)$`)

// RedactArg hides the value of a secret-looking assignment.
//
// Example: "--db-password=hunter2" -> "--db-password=[REDACTED]"
func RedactArg(arg string) string {
	m := secretAssignment.FindStringSubmatch(arg)
	if m == nil {
		return arg
	}
	return m[1] + Redacted
}

// RedactArgs applies RedactArg to every argument. Embedded bearer tokens
// ("Authorization: Bearer x") are also hidden.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		a = RedactArg(a)
		if idx := strings.Index(strings.ToLower(a), "bearer "); idx >= 0 {
			a = a[:idx+len("bearer ")] + Redacted
		}
		out[i] = a
	}
	return out
}

// TruncateString truncates s to maxLen bytes, ending with "..." when cut.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
