// Package dryrun builds human-readable previews of what a tool invocation
// would do, without executing it.
package dryrun

import (
	"context"
	"fmt"
	"strings"
)

// Preview summarizes the intended effect of a tool call.
type Preview struct {
	ToolName          string   `json:"tool_name"`
	Arguments         []string `json:"arguments"`
	AffectedResources []string `json:"affected_resources"`
	Details           string   `json:"details,omitempty"`
}

// Generator produces previews.
type Generator interface {
	Generate(ctx context.Context, toolName string, args []string) (*Preview, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, toolName string, args []string) (*Preview, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, toolName string, args []string) (*Preview, error) {
	return f(ctx, toolName, args)
}

// DefaultGenerator recognizes file operations, terminal commands and MCP tools.
type DefaultGenerator struct{}

// NewGenerator returns the default preview generator.
func NewGenerator() *DefaultGenerator {
	return &DefaultGenerator{}
}

// Generate builds a preview for toolName invoked with args.
func (g *DefaultGenerator) Generate(ctx context.Context, toolName string, args []string) (*Preview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Preview{
		ToolName:          toolName,
		Arguments:         append([]string{}, args...),
		AffectedResources: affectedResources(toolName, args),
		Details:           details(toolName, args),
	}, nil
}

var fileTools = map[string]string{
	"read_file":   "Would read file: %s",
	"write_file":  "Would write to file: %s",
	"edit_file":   "Would modify file: %s",
	"delete_file": "Would delete file: %s",
	"create_file": "Would create file: %s",
}

const terminalTool = "run_terminal_cmd"

func affectedResources(toolName string, args []string) []string {
	resources := []string{}

	switch {
	case fileTools[toolName] != "":
		if len(args) > 0 {
			resources = append(resources, "File: "+args[0])
		}

	case toolName == terminalTool:
		if len(args) == 0 {
			break
		}
		cmd := strings.Join(args, " ")
		switch {
		case strings.Contains(cmd, "terraform"):
			resources = append(resources, "Terraform state")
			for _, a := range args {
				if strings.HasSuffix(a, ".tf") || strings.HasSuffix(a, ".tfvars") {
					resources = append(resources, "Terraform file: "+a)
				}
			}
		case strings.Contains(cmd, "git"):
			resources = append(resources, "Git repository")
		case strings.Contains(cmd, "docker"), strings.Contains(cmd, "podman"):
			resources = append(resources, "Container runtime")
		case strings.Contains(cmd, "kubectl"):
			resources = append(resources, "Kubernetes cluster")
		default:
			resources = append(resources, "Command: "+args[0])
		}

	case strings.HasPrefix(toolName, "mcp_"):
		if parts := strings.Split(toolName, "_"); len(parts) >= 2 {
			resources = append(resources, "MCP server: "+parts[1])
		}
		if len(args) > 0 {
			resources = append(resources, "Tool arguments: "+strings.Join(args, " "))
		}

	default:
		if len(args) > 0 {
			resources = append(resources, fmt.Sprintf("Tool: %s with %d argument(s)", toolName, len(args)))
		}
	}

	return resources
}

func details(toolName string, args []string) string {
	if format, ok := fileTools[toolName]; ok {
		target := "<unknown>"
		if len(args) > 0 {
			target = args[0]
		}
		return fmt.Sprintf(format, target)
	}

	if toolName == terminalTool {
		cmd := strings.Join(args, " ")
		switch {
		case strings.Contains(cmd, "terraform apply"):
			return "Would apply Terraform configuration and create/modify infrastructure resources"
		case strings.Contains(cmd, "terraform destroy"):
			return "Would destroy Terraform-managed infrastructure resources"
		case strings.Contains(cmd, "git push") && strings.Contains(cmd, "--force"):
			return "Would force push to remote repository (potentially destructive)"
		case strings.Contains(cmd, "rm -rf"):
			return "Would recursively delete files and directories (destructive)"
		case strings.Contains(cmd, "sudo"):
			return "Would execute command with elevated privileges"
		default:
			return "Would execute shell command: " + cmd
		}
	}

	if strings.HasPrefix(toolName, "mcp_") {
		return fmt.Sprintf("Would call MCP tool: %s with arguments", toolName)
	}

	return ""
}

// Format renders a preview as plain text for terminals.
func Format(p *Preview) string {
	var b strings.Builder
	b.WriteString("Dry-Run Preview\n")
	b.WriteString("===============\n")
	fmt.Fprintf(&b, "Tool: %s\n", p.ToolName)

	if len(p.Arguments) > 0 {
		fmt.Fprintf(&b, "Arguments: %s\n", strings.Join(p.Arguments, " "))
	}
	if len(p.AffectedResources) > 0 {
		b.WriteString("Affected Resources:\n")
		for _, r := range p.AffectedResources {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if p.Details != "" {
		fmt.Fprintf(&b, "Details: %s\n", p.Details)
	}

	return b.String()
}
