package commands

import (
	"fmt"
	"strings"
)

// UsageReporter exposes the session's token counters.
type UsageReporter interface {
	UsageTotals() map[string]int
	LastUsage() map[string]int
}

// WatcherLister describes the active file watchers.
type WatcherLister interface {
	DescribeWatchers() []string
}

// Handler executes one slash command with its argument remainder.
type Handler func(args string) string

// Processor parses and executes the slash commands entered at the
// prompt. /exit is intentionally absent; the REPL owns process exit.
type Processor struct {
	commands map[string]Handler
	usage    UsageReporter
	watchers WatcherLister
	version  string
}

func NewProcessor(version string, usage UsageReporter, watchers WatcherLister) *Processor {
	p := &Processor{
		usage:    usage,
		watchers: watchers,
		version:  version,
	}
	p.commands = map[string]Handler{
		"/help":     p.showHelp,
		"/version":  p.showVersion,
		"/usage":    p.showUsage,
		"/watchers": p.showWatchers,
	}
	return p
}

// Register adds or replaces a command handler. Names must start with a
// slash.
func (p *Processor) Register(name string, handler Handler) {
	p.commands[strings.ToLower(name)] = handler
}

// IsCommand reports whether the input line addresses the processor.
func (p *Processor) IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Process executes a command line and returns its output.
func (p *Processor) Process(commandText string) string {
	parts := strings.SplitN(strings.TrimSpace(commandText), " ", 2)
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}

	name := strings.ToLower(parts[0])
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	if handler, ok := p.commands[name]; ok {
		return handler(args)
	}
	return fmt.Sprintf("Command not found: %s. Type '/help' for available commands.", name)
}

func (p *Processor) showHelp(string) string {
	return strings.TrimSpace(`
Available Commands:
------------------
/help      - Show this help message
/version   - Show the current version of Krishna
/usage     - Show token usage for this session
/watchers  - List active file watchers
/config    - Show the effective configuration
/exit      - Exit the application

Usage:
Commands begin with a forward slash (/).
Anything else is sent to the assistant.`)
}

func (p *Processor) showVersion(string) string {
	return p.version
}

func (p *Processor) showUsage(string) string {
	if p.usage == nil {
		return "Usage tracking is not available."
	}
	totals := p.usage.UsageTotals()
	last := p.usage.LastUsage()
	return fmt.Sprintf(`Token Usage
-----------
Session: input %d, output %d, total %d
Last call: input %d, output %d, total %d`,
		totals["input_tokens"], totals["output_tokens"], totals["total_tokens"],
		last["input_tokens"], last["output_tokens"], last["total_tokens"])
}

func (p *Processor) showWatchers(string) string {
	if p.watchers == nil {
		return "File watching is not available."
	}
	described := p.watchers.DescribeWatchers()
	if len(described) == 0 {
		return "No active file watchers"
	}
	return "Active File Watchers:\n\n" + strings.Join(described, "\n")
}
