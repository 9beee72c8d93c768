package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/innomightlabs/krishna/pkg/agent"
	"github.com/innomightlabs/krishna/pkg/commands"
	"github.com/innomightlabs/krishna/pkg/config"
	"github.com/innomightlabs/krishna/pkg/conversation"
	"github.com/innomightlabs/krishna/pkg/embedding"
	"github.com/innomightlabs/krishna/pkg/heartbeat"
	"github.com/innomightlabs/krishna/pkg/logger"
	"github.com/innomightlabs/krishna/pkg/memory"
	"github.com/innomightlabs/krishna/pkg/providers"
	"github.com/innomightlabs/krishna/pkg/tokenizer"
	"github.com/innomightlabs/krishna/pkg/tools"
	"github.com/innomightlabs/krishna/pkg/watcher"
)

const version = "v1.0.0"

const banner = `
  ╭──────────────────────────────────────────╮
  │                                          │
  │            INNOMIGHT LABS CLI            │
  │                                          │
  │    Your AI-powered coding assistant      │
  │                                          │
  ╰──────────────────────────────────────────╯

Type your message below. Commands start with '/'. Type '/exit' to quit.
`

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath(), "path to the config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("krishna %s\n", version)
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		return 2
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: open log file: %v\n", err)
			return 2
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "error: create workspace: %v\n", err)
		return 2
	}

	provider := providers.NewHTTPProvider(
		cfg.Provider.APIKey,
		cfg.Provider.APIBase,
		cfg.Agent.Model,
		cfg.Agent.MaxTokens,
		cfg.Agent.Temperature,
	)
	if cfg.Provider.UserAgent != "" {
		provider.SetUserAgent(cfg.Provider.UserAgent)
	}

	manager, err := buildManager(cfg, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: conversation store: %v\n", err)
		return 2
	}

	var embedder embedding.Embedder = embedding.NewNoopEmbedder()
	if cfg.Embedding.Enabled {
		embedder = embedding.NewOllamaEmbedder(cfg.Embedding.APIBase, cfg.Embedding.Model)
	}

	registry := tools.NewRegistry()

	allowedDir := ""
	if cfg.IsRestrictToWorkspace() {
		allowedDir = workspace
	}
	registry.Register(tools.NewFSReadTool(allowedDir))
	registry.Register(tools.NewFSWriteTool(allowedDir))
	registry.Register(tools.NewFSFindTool(allowedDir))
	registry.Register(tools.NewFSSearchTool(allowedDir))

	shell := tools.NewShellTool(workspace)
	shell.SetTimeout(time.Duration(cfg.Tools.ShellTimeoutSeconds) * time.Second)
	shell.SetRestrictToWorkspace(cfg.IsRestrictToWorkspace())
	registry.Register(shell)

	registry.Register(tools.NewTodoTool(filepath.Join(workspace, "todos.json")))
	registry.Register(tools.NewSendMessageTool(os.Stdout))
	registry.Register(tools.NewPrintMessageTool(os.Stdout))

	store, err := memory.Open(workspace)
	if err != nil {
		logger.WarnCF("main", "Memory store unavailable, memory tools disabled",
			map[string]interface{}{"error": err.Error()})
	} else {
		defer store.Close()
		registry.Register(tools.NewMemoryAppendTool(store, embedder))
		registry.Register(tools.NewMemoryScanTool(store))
		registry.Register(tools.NewMemorySearchTool(store))
		registry.Register(tools.NewMemoryModifyTool(store, embedder))
		registry.Register(tools.NewMemoryDeleteTool(store))
	}

	registry.Register(tools.NewSubagentTool(&subagentRunner{
		provider: provider,
		registry: subagentRegistry(workspace, cfg),
		embedder: embedder,
		maxLoops: cfg.Agent.MaxIterations,
	}))

	watchManager := watcher.NewManager()
	defer watchManager.StopAll()
	controller := watcher.NewController(watchManager, agent.NewWatcherAgent(provider), func() agent.Runner {
		return agent.NewKrishna(provider, conversation.NewSlidingWindowManager(), registry,
			agent.WithMaxLoops(cfg.Agent.MaxIterations))
	})
	registry.Register(tools.NewStartWatcherTool(controller))
	registry.Register(tools.NewStopWatcherTool(controller))
	registry.Register(tools.NewListWatchersTool(controller))
	registry.Register(tools.NewWatcherInfoTool(controller))

	krishna := agent.NewKrishna(provider, manager, registry,
		agent.WithMaxLoops(cfg.Agent.MaxIterations),
		agent.WithWindow(cfg.Agent.FetchWindow),
	)
	defer func() {
		if err := krishna.PersistConversation(); err != nil {
			logger.WarnCF("main", "Failed to persist conversation",
				map[string]interface{}{"error": err.Error()})
		}
	}()

	if cfg.Heartbeat.Enabled {
		hb, err := heartbeat.NewService(
			workspace,
			time.Duration(cfg.Heartbeat.IntervalSeconds)*time.Second,
			cfg.Heartbeat.Cron,
			true,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: heartbeat: %v\n", err)
			return 2
		}
		hb.SetOnHeartbeat(func(prompt string) (string, error) {
			runner := agent.NewKrishna(provider, conversation.NewSlidingWindowManager(), registry,
				agent.WithMaxLoops(cfg.Agent.MaxIterations))
			return runner.SendText(context.Background(), prompt)
		})
		hb.SetDelivery(func(response string) {
			fmt.Printf("\n[heartbeat] %s\n", response)
		})
		if err := hb.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "error: heartbeat: %v\n", err)
			return 2
		}
		defer hb.Stop()
	}

	processor := commands.NewProcessor(version, krishna, controller)
	processor.Register("/config", func(string) string {
		return describeConfig(cfg, *configPath)
	})

	return repl(krishna, processor, workspace)
}

// repl reads user input until /exit or EOF and feeds it to the agent,
// surfacing intermediate tool feedback as it arrives.
func repl(krishna *agent.Krishna, processor *commands.Processor, workspace string) int {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "krishna> ",
		HistoryFile:     filepath.Join(workspace, ".krishna_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: readline: %v\n", err)
		return 2
	}
	defer rl.Close()

	fmt.Print(banner)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("Operation cancelled by user")
			continue
		}
		if err == io.EOF {
			fmt.Println("Exiting Innomight Labs CLI...")
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read input: %v\n", err)
			return 2
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "/exit") {
			fmt.Println("Thank you for using Innomight Labs CLI. Goodbye!")
			return 0
		}
		if processor.IsCommand(line) {
			fmt.Println(processor.Process(line))
			continue
		}

		stream := krishna.Send(context.Background(), line)
		for {
			chunk, ok := stream.Next()
			if !ok {
				break
			}
			fmt.Println(chunk)
		}
		if err := stream.Err(); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// buildManager selects the history retention strategy from the config.
func buildManager(cfg *config.Config, provider providers.Provider) (conversation.Manager, error) {
	switch cfg.Conversation.Mode {
	case "memory":
		return conversation.NewSlidingWindowManager(), nil
	case "token_aware":
		opts := []conversation.TokenAwareOption{
			conversation.WithSummarizer(summarizer(provider)),
		}
		if cfg.Conversation.ReserveTokens > 0 {
			opts = append(opts, conversation.WithReserveTokens(cfg.Conversation.ReserveTokens))
		}
		return conversation.NewTokenAwareManager(
			cfg.Conversation.MaxTokens,
			conversation.ParseOverflowStrategy(cfg.Conversation.OverflowStrategy),
			tokenizer.NewCounter(cfg.Conversation.TokenModel),
			opts...,
		), nil
	case "persistent", "":
		return conversation.NewPersistentWindowManager(cfg.ConversationFilePath())
	default:
		return nil, fmt.Errorf("unknown conversation mode %q", cfg.Conversation.Mode)
	}
}

// summarizer condenses evicted history through the model so the
// token-aware manager can replace old turns with a recap.
func summarizer(provider providers.Provider) conversation.SummarizerFunc {
	return func(msgs []conversation.Message) (string, error) {
		var sb strings.Builder
		sb.WriteString("Summarize the following conversation excerpt in a short paragraph. Preserve decisions, file paths and open tasks.\n\n")
		for _, msg := range msgs {
			fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, msg.Content)
		}
		reply, err := provider.Invoke(context.Background(), sb.String())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(reply.Content), nil
	}
}

// subagentRunner delegates a task to a fresh plan/act/observe agent on
// its own conversation. Each call is independent.
type subagentRunner struct {
	provider providers.Provider
	registry *tools.Registry
	embedder embedding.Embedder
	maxLoops int
}

func (r *subagentRunner) RunTask(ctx context.Context, prompt string) (string, error) {
	sub := agent.NewPlanActObserve(r.provider, conversation.NewSlidingWindowManager(), r.registry, agent.AutoApprover{},
		agent.WithPlanMaxLoops(r.maxLoops),
		agent.WithPlanEmbedder(r.embedder),
	)
	return sub.RunTask(ctx, prompt)
}

// subagentRegistry equips delegated tasks with file system and shell
// access only. No message, watcher or nested subagent tools.
func subagentRegistry(workspace string, cfg *config.Config) *tools.Registry {
	registry := tools.NewRegistry()

	allowedDir := ""
	if cfg.IsRestrictToWorkspace() {
		allowedDir = workspace
	}
	registry.Register(tools.NewFSReadTool(allowedDir))
	registry.Register(tools.NewFSWriteTool(allowedDir))
	registry.Register(tools.NewFSFindTool(allowedDir))
	registry.Register(tools.NewFSSearchTool(allowedDir))

	shell := tools.NewShellTool(workspace)
	shell.SetTimeout(time.Duration(cfg.Tools.ShellTimeoutSeconds) * time.Second)
	shell.SetRestrictToWorkspace(cfg.IsRestrictToWorkspace())
	registry.Register(shell)

	return registry
}

func describeConfig(cfg *config.Config, path string) string {
	redacted := *cfg
	if redacted.Provider.APIKey != "" {
		redacted.Provider.APIKey = "***"
	}
	data, err := json.MarshalIndent(&redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("Failed to render config: %v", err)
	}
	return fmt.Sprintf("Config file: %s\n%s", path, data)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".krishna", "config.json")
}
