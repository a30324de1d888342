// Command nav is a terminal-based AI coding agent that provides a REPL
// interface for interactive conversations with LLM-powered tool execution.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/navcli/nav/agent"
	"github.com/navcli/nav/config"
	"github.com/navcli/nav/llm"
	"github.com/navcli/nav/process"
	"github.com/navcli/nav/session"
	"github.com/navcli/nav/tools"
	"github.com/navcli/nav/ui"
)

var version = "dev"

func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	var (
		modelFlag      string
		providerFlag   string
		baseURLFlag    string
		verbose        bool
		sandbox        bool
		enableHandover bool
	)

	root := &cobra.Command{
		Use:     "nav [prompt]",
		Short:   "nav is a terminal AI coding agent",
		Version: getVersion(),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var oneShot string
			if len(args) == 1 {
				oneShot = args[0]
			}
			return run(runOptions{
				model:          modelFlag,
				provider:       providerFlag,
				baseURL:        baseURLFlag,
				verbose:        verbose,
				sandbox:        sandbox,
				enableHandover: enableHandover,
				oneShot:        oneShot,
			})
		},
	}

	root.Flags().StringVarP(&modelFlag, "model", "m", "", "Model name (overrides NAV_MODEL)")
	root.Flags().StringVarP(&providerFlag, "provider", "p", "", "LLM provider: openai, anthropic, ollama (overrides NAV_PROVIDER)")
	root.Flags().StringVarP(&baseURLFlag, "base-url", "b", "", "API base URL (overrides NAV_BASE_URL)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "Emit structured diagnostic logging")
	root.Flags().BoolVarP(&sandbox, "sandbox", "s", false, "Re-exec under the platform sandbox before running")
	root.Flags().BoolVar(&enableHandover, "enable-handover", true, "Auto hand over when the context window fills up")

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// signalExit carries the exit code a caught signal maps to (130 for SIGINT,
// 143 for SIGTERM), so one-shot mode's exit status reflects which signal
// interrupted it rather than collapsing both into a generic cancellation.
type signalExit struct{ code int }

func (s signalExit) Error() string { return fmt.Sprintf("interrupted (signal exit %d)", s.code) }

func exitCodeFor(err error) int {
	var se signalExit
	switch {
	case errors.As(err, &se):
		return se.code
	case err == context.Canceled:
		return 130
	default:
		return 1
	}
}

type runOptions struct {
	model          string
	provider       string
	baseURL        string
	verbose        bool
	sandbox        bool
	enableHandover bool
	oneShot        string
}

func run(opts runOptions) error {
	configureLogging(opts.verbose)

	cfg, err := config.Load(opts.model, opts.provider, opts.baseURL, opts.sandbox)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Sandbox {
		if err := reexecInSandbox(); err != nil {
			return fmt.Errorf("sandbox unavailable: %w", err)
		}
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	logger, err := session.NewLogger(workDir)
	if err != nil {
		log.Warn().Err(err).Msg("session log unavailable, continuing without it")
		logger = nil
	} else {
		defer logger.Close()
		logger.Config(cfg)
	}

	client := newClient(cfg)
	currentModel := cfg.Model
	currentProvider := cfg.Provider

	procMgr := process.NewManager(workDir)
	defer procMgr.KillAll()

	registry := tools.NewRegistry(workDir, procMgr)

	handoverThreshold := cfg.HandoverThreshold
	if !opts.enableHandover {
		handoverThreshold = 0 // 0 disables auto-handover (overThreshold never fires)
	}
	ag := agent.NewWithThreshold(client, registry, workDir, cfg.ContextWindow, handoverThreshold)
	if logger != nil {
		ag.SetLogger(logger)
	}

	term := ui.NewTerminal()

	if opts.oneShot != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		exitCode := 130
		go func() {
			if sig, ok := <-sigCh; ok {
				if sig == syscall.SIGTERM {
					exitCode = 143
				}
				cancel()
			}
		}()
		defer signal.Stop(sigCh)

		logSystemPrompt(logger, ag)
		if err := runTurn(ctx, ag, term, logger, opts.oneShot); err != nil {
			if ctx.Err() != nil {
				return signalExit{code: exitCode}
			}
			return err
		}
		return nil
	}

	term.PrintBanner(currentModel, workDir, getVersion())
	logSystemPrompt(logger, ag)

	return repl(ag, term, registry, logger, workDir, &currentModel, &currentProvider)
}

func logSystemPrompt(logger *session.Logger, ag *agent.Agent) {
	if logger == nil {
		return
	}
	history := ag.MessageHistory()
	if len(history) > 0 {
		logger.SystemPrompt(history[0].ContentString())
	}
}

func configureLogging(verbose bool) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func newClient(cfg *config.Config) llm.LLMClient {
	switch cfg.Provider {
	case "anthropic":
		return llm.NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.BaseURL)
	case "ollama":
		client, err := llm.NewOllamaClient(cfg.Model, cfg.BaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create ollama client")
		}
		return client
	default:
		return llm.NewOpenAIResponsesClient(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.BaseURL)
	}
}

func repl(ag *agent.Agent, term *ui.Terminal, registry *tools.Registry, logger *session.Logger, workDir string, currentModel, currentProvider *string) error {
	rootCtx := context.Background()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	reader := bufio.NewReader(os.Stdin)

	var mu sync.Mutex
	var runCancel context.CancelFunc
	var lastInterrupt time.Time

	go func() {
		for range sigCh {
			mu.Lock()
			cancel := runCancel
			now := time.Now()
			doubleTap := now.Sub(lastInterrupt) < 2*time.Second
			lastInterrupt = now
			mu.Unlock()

			if cancel != nil {
				cancel()
			} else if doubleTap {
				fmt.Println("\nExiting.")
				os.Exit(130)
			} else {
				fmt.Println()
				term.PrintPrompt()
			}
		}
	}()

	running := true
	for running {
		fmt.Print(term.Prompt())
		input, err := readInput(reader)
		if err != nil {
			break // EOF (Ctrl+D)
		}
		if input == "" {
			continue
		}

		switch {
		case input == "/help":
			term.PrintHelp()
		case input == "/quit":
			running = false
		case input == "/clear":
			ag.Clear(term)
		case input == "/context":
			s := ag.ContextUsage()
			term.PrintContextUsage(s.TotalTokens, s.ContextWindow, s.Threshold,
				s.MessageCount, s.SystemTokens, s.ToolDefTokens,
				s.MessageTokens, s.ActualTokens)
		case input == "/handover" || strings.HasPrefix(input, "/handover "):
			instructions := strings.TrimSpace(strings.TrimPrefix(input, "/handover"))
			if err := ag.Handover(rootCtx, term, instructions); err != nil {
				term.PrintError(err)
			}
		case input == "/model" || strings.HasPrefix(input, "/model "):
			arg := strings.TrimSpace(strings.TrimPrefix(input, "/model"))
			handleModelSwitch(reader, term, ag, currentModel, currentProvider, arg)
		case input == "/tasks" || strings.HasPrefix(input, "/tasks "):
			handleTasks(term, workDir, strings.TrimSpace(strings.TrimPrefix(input, "/tasks")))
		default:
			if logger != nil {
				logger.UserMessage(input)
			}

			runCtx, cancel := context.WithCancel(rootCtx)
			mu.Lock()
			runCancel = cancel
			mu.Unlock()

			err := ag.Run(runCtx, input, term)

			mu.Lock()
			runCancel = nil
			mu.Unlock()
			cancel()

			if err != nil {
				if err == context.Canceled || runCtx.Err() != nil {
					fmt.Println("Operation cancelled.")
					fmt.Println()
				} else {
					term.PrintError(err)
					if logger != nil {
						logger.Error(err)
					}
				}
			}
			if logger != nil {
				history := ag.MessageHistory()
				if n := len(history); n > 0 {
					logger.AssistantMessage(history[n-1])
				}
			}
		}
	}

	return nil
}

// runTurn runs a single one-shot prompt non-interactively and returns its error.
func runTurn(ctx context.Context, ag *agent.Agent, term *ui.Terminal, logger *session.Logger, prompt string) error {
	if logger != nil {
		logger.UserMessage(prompt)
	}
	err := ag.Run(ctx, prompt, term)
	if logger != nil {
		if err != nil {
			logger.Error(err)
		}
		history := ag.MessageHistory()
		if n := len(history); n > 0 {
			logger.AssistantMessage(history[n-1])
		}
	}
	return err
}

// readInput reads one line, then collects any additional pasted lines that
// arrived in the same paste event (checking both the bufio buffer and the
// OS stdin buffer for multi-line paste).
func readInput(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	lines := []string{strings.TrimRight(line, "\r\n")}

	for reader.Buffered() > 0 || ui.StdinHasData() {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func handleModelSwitch(reader *bufio.Reader, term *ui.Terminal, ag *agent.Agent, currentModel, currentProvider *string, arg string) {
	if arg != "" {
		applyModelSwitch(term, ag, currentModel, currentProvider, arg, config.DetectProvider(arg))
		return
	}

	models := config.KnownModels()
	options := make([]ui.ModelOption, len(models))
	for i, m := range models {
		options[i] = ui.ModelOption{
			Label:   m.Label,
			Current: m.Model == *currentModel,
		}
	}
	term.PrintModelMenu(options)

	fmt.Print("Choice: ")
	choice, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return
	}

	var selectedModel, selectedProvider string

	n, err := strconv.Atoi(choice)
	if err != nil {
		term.PrintWarning("Invalid choice.")
		return
	}
	switch {
	case n == 0:
		term.PrintProviderPrompt(*currentProvider)
		fmt.Print("Provider (Enter for current): ")
		pChoice, pErr := reader.ReadString('\n')
		if pErr != nil {
			return
		}
		switch strings.TrimSpace(pChoice) {
		case "1":
			selectedProvider = "openai"
		case "2":
			selectedProvider = "anthropic"
		case "3":
			selectedProvider = "ollama"
		case "":
			selectedProvider = *currentProvider
		default:
			term.PrintWarning("Invalid choice.")
			return
		}
		fmt.Print("Model name: ")
		custom, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		custom = strings.TrimSpace(custom)
		if custom == "" {
			return
		}
		selectedModel = custom
	case n >= 1 && n <= len(models):
		selectedModel = models[n-1].Model
		selectedProvider = models[n-1].Provider
	default:
		term.PrintWarning("Invalid choice.")
		return
	}

	applyModelSwitch(term, ag, currentModel, currentProvider, selectedModel, selectedProvider)
}

// applyModelSwitch resolves provider defaults/credentials for selectedModel
// and, if available, swaps the agent's client in place.
func applyModelSwitch(term *ui.Terminal, ag *agent.Agent, currentModel, currentProvider *string, selectedModel, selectedProvider string) {
	if selectedModel == *currentModel {
		term.PrintWarning(fmt.Sprintf("Already using %s.", selectedModel))
		return
	}

	baseURL, maxTokens, contextWindow := config.ProviderDefaults(selectedProvider, selectedModel)
	apiKey := config.APIKeyForProvider(selectedProvider)
	if selectedProvider != "ollama" && apiKey == "" {
		term.PrintWarning(fmt.Sprintf("No API key found for %s. Set the environment variable or add it to credentials.", selectedProvider))
		return
	}

	client := newClient(&config.Config{
		Provider:  selectedProvider,
		APIKey:    apiKey,
		Model:     selectedModel,
		MaxTokens: maxTokens,
		BaseURL:   baseURL,
	})
	ag.SetClient(client, contextWindow)
	*currentModel = selectedModel
	*currentProvider = selectedProvider

	term.PrintModelSwitch(selectedModel)
}

func handleTasks(term *ui.Terminal, workDir, arg string) {
	tasks, err := agent.LoadTasks(workDir)
	if err != nil {
		term.PrintError(err)
		return
	}

	switch {
	case arg == "":
		items := make([]ui.TaskListItem, len(tasks))
		for i, t := range tasks {
			items[i] = ui.TaskListItem{ID: t.ID, Content: t.Content, Description: t.Description, Status: t.Status, ActiveForm: t.ActiveForm}
		}
		term.PrintTaskList(items)

	case strings.HasPrefix(arg, "add "):
		content := strings.TrimSpace(strings.TrimPrefix(arg, "add "))
		if content == "" {
			term.PrintWarning("Usage: /tasks add <description>")
			return
		}
		tasks = agent.AddTask(tasks, content, "")
		if err := agent.SaveTasks(workDir, tasks); err != nil {
			term.PrintError(err)
			return
		}
		term.PrintWarning(fmt.Sprintf("Added task: %s", content))

	case strings.HasPrefix(arg, "done "):
		setTaskStatus(term, workDir, tasks, strings.TrimPrefix(arg, "done "), "completed")

	case strings.HasPrefix(arg, "start "):
		setTaskStatus(term, workDir, tasks, strings.TrimPrefix(arg, "start "), "in_progress")

	default:
		term.PrintWarning("Usage: /tasks [add <text> | start <id> | done <id>]")
	}
}

func setTaskStatus(term *ui.Terminal, workDir string, tasks []agent.Task, idStr, status string) {
	id, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil {
		term.PrintWarning("Task id must be a number.")
		return
	}
	if err := agent.SetTaskStatus(tasks, id, status); err != nil {
		term.PrintError(err)
		return
	}
	if err := agent.SaveTasks(workDir, tasks); err != nil {
		term.PrintError(err)
	}
}
