// Package tools provides the tool registry and implementations for file operations,
// shell execution, and codebase exploration, with path sandboxing for security.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/navcli/nav/llm"
	"github.com/navcli/nav/process"
)

// ToolFunc is the signature for tool implementations.
type ToolFunc func(ctx context.Context, input json.RawMessage) (string, error)

type toolEntry struct {
	name   string
	fn     ToolFunc
	def    llm.ToolDef
	schema *jsonschemav5.Schema
}

// Registry holds all available tools and dispatches execution.
type Registry struct {
	tools          []toolEntry
	workDir        string
	exploreFunc    ExploreFunc
	processManager *process.Manager
}

// NewRegistry creates a registry and registers all built-in tools, backed by
// a process manager rooted at workDir for the shell/shell_status tools.
func NewRegistry(workDir string, procMgr *process.Manager) *Registry {
	r := &Registry{workDir: workDir, processManager: procMgr}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(name, description string, schema json.RawMessage, fn ToolFunc) {
	r.tools = append(r.tools, toolEntry{
		name:   name,
		fn:     fn,
		schema: compileSchema(name, schema),
		def: llm.ToolDef{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        name,
				Description: description,
				Parameters:  schema,
			},
		},
	})
}

// Execute validates the tool-call arguments against the tool's compiled
// schema, then runs it by name.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	for _, t := range r.tools {
		if t.name == name {
			if err := validateArgs(t.schema, input); err != nil {
				return "", err
			}
			return t.fn(ctx, input)
		}
	}
	return "", fmt.Errorf("unknown tool: %s", name)
}

// IsReadOnly returns true for tools that don't modify the filesystem or
// process state, and so can run in parallel without user confirmation.
func (r *Registry) IsReadOnly(name string) bool {
	switch name {
	case "glob", "grep", "ls", "read", "explore", "shell_status":
		return true
	default:
		return false
	}
}

// Definitions returns tool definitions in stable registration order.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.def
	}
	return defs
}

// registerReadOnlyTools registers the read-only research tools (glob, grep,
// ls) of the full registry. The read-only registry used by the explore
// sub-agent registers its own copies in registerReadOnlyBuiltins.
func (r *Registry) registerReadOnlyTools() {
	r.register("glob",
		`Fast file pattern matching tool. Supports glob patterns like "**/*.go" or "src/**/*.ts". Returns matching file paths relative to working directory, in lexical path order. Use this tool when you need to find files by name patterns. Prefer this over shell find or ls commands.`,
		generateSchema(globInput{}),
		r.globTool,
	)

	r.register("grep",
		`Search file contents using RE2 regex. Returns matching lines with file paths and line numbers. ALWAYS use this tool for content search — never use shell grep or rg. Supports RE2 regex syntax (e.g., "log.*Error", "func\\s+\\w+"). Note: RE2 does not support lookaheads or lookbehinds. Literal braces need escaping (use "interface\\{\\}" to find "interface{}" in Go code). Filter files with the include parameter using a glob pattern matched against the file name (e.g., "*.go"); brace alternatives like "*.{ts,tsx}" are not supported.`,
		generateSchema(grepInput{}),
		r.grepTool,
	)

	r.register("ls", "List directory contents with file/directory indicators and sizes. Can only list directories, not files. Use glob to find files by pattern.",
		generateSchema(lsInput{}),
		r.lsTool,
	)
}

func (r *Registry) registerBuiltins() {
	r.registerReadOnlyTools()

	r.register("read",
		`Read a file's contents in hashline display form: "L:HH|content", where HH is a short content hash used to anchor later edits. Use offset/limit for large files (limit ≤ 2000 lines). Can only read files, not directories — use ls for directories. Always use this tool instead of shell cat, head, or tail.`,
		generateSchema(readInput{}),
		r.readTool,
	)

	r.register("edit",
		`Edit a file via line-anchored operations: set_line (replace one line), replace_lines (replace an inclusive range), insert_after (insert non-empty text after a line). Every anchor is an "L:HH" reference copied from a prior read or edit's hashline output and is validated against the file's current content before anything is written — if any anchor in the batch is stale, the whole batch is rejected and the file is untouched, with a report showing what changed. User confirmation required.`,
		generateSchema(editInput{}),
		r.editTool,
	)

	r.register("write",
		`Create or overwrite a file with the given content. Creates parent directories if needed. User confirmation required. ALWAYS prefer editing existing files over writing new ones — use the edit tool to modify existing files. Never proactively create documentation files (*.md) or README files unless explicitly requested.`,
		generateSchema(writeInput{}),
		r.writeTool,
	)

	r.register("shell",
		`Execute a shell command in the working directory. Use for terminal operations like git, builds, tests, and other system commands. Do NOT use shell for file operations (reading, writing, editing, searching) — use the dedicated tools instead. Specifically, do not use cat, head, tail, sed, awk, find, grep, or echo when a dedicated tool exists.

The command races against wait_ms (default 30000ms): if it finishes first you get its full output and exit code; otherwise it is backgrounded and tracked by pid — check on it with shell_status. Passing wait_ms=0 backgrounds it immediately.

User confirmation required. Git safety: never force-push, reset --hard, use --no-verify, or amend unless the user explicitly asks. Never use interactive flags (-i). Prefer staging specific files over "git add -A". Only commit when explicitly requested by the user.`,
		generateSchema(shellInput{}),
		r.shellTool,
	)

	r.register("shell_status",
		`Inspect or control a backgrounded shell command. Omit pid to list every tracked process. With a pid, action=status gives a short summary (default), action=output the full captured output, action=tail the last n bytes, action=kill terminates it.`,
		generateSchema(shellStatusInput{}),
		r.shellStatusTool,
	)

	r.register("explore",
		`Explore the codebase to answer broad questions by delegating to a focused sub-agent. The sub-agent has its own context and read-only tools (glob, grep, ls, read). Use this for questions like "how does authentication work?", "what's the project structure?", or "find all API endpoints". Do NOT use this for direct tasks like editing files or running commands — only for research and exploration.`,
		generateSchema(exploreInput{}),
		r.exploreTool,
	)
}
