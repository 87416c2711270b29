// Toolgate is a policy engine that decides whether an AI agent may run a
// tool call.
//
// Each request (a tool name and its arguments) is matched against a
// priority-ordered rule set loaded from a TOML policy file. The first match
// decides: allow, deny, ask_user or dry_run_first. Unmatched requests fall
// back to the approval mode.
//
// Usage:
//
//	# Create a policy from a built-in template
//	toolgate init --template production
//
//	# Evaluate one call
//	toolgate check --tool run_shell_command -- "rm -rf build"
//
//	# Use as an agent pre-tool hook (exit status 2 blocks the call)
//	echo '{"tool_name":"read_file","args":["main.go"]}' | toolgate hook
//
//	# Run the decision server with hot reload and analytics
//	toolgate serve --config toolgate.yaml
//
//	# Inspect the recorded decisions
//	toolgate analytics rules
package main

func main() {
	Execute()
}
