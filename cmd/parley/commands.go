package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/HexSleeves/parley/internal/bus"
	"github.com/HexSleeves/parley/internal/config"
	"github.com/HexSleeves/parley/internal/conversation"
	"github.com/HexSleeves/parley/internal/engine"
	"github.com/HexSleeves/parley/internal/fares"
	"github.com/HexSleeves/parley/internal/llm"
	"github.com/HexSleeves/parley/internal/output"
	"github.com/HexSleeves/parley/internal/tools"
	"github.com/HexSleeves/parley/internal/tui"
)

// loadConfig reads the config file, then applies the environment and the
// global flags on top.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()

	if b := cmd.String("backend"); b != "" {
		cfg.Backend = b
	}
	if m := cmd.String("model"); m != "" {
		cfg.Model = m
	}
	if s := cmd.String("system"); s != "" {
		cfg.SystemPrompt = s
	}
	if cmd.Bool("no-stream") {
		cfg.Stream = false
	}
	if cmd.IsSet("max-tool-rounds") {
		cfg.MaxToolRounds = cmd.Int("max-tool-rounds")
	}
	if p := cmd.String("fares-db"); p != "" {
		cfg.FaresDB = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func providerConfig(cfg *config.Config) llm.ProviderConfig {
	pc := llm.ProviderConfig{
		Backend:    cfg.Backend,
		Model:      cfg.Model,
		MaxRetries: cfg.MaxRetries,
	}
	switch llm.CanonicalBackend(cfg.Backend) {
	case "local":
		pc.BaseURL = cfg.Local.BaseURL
		pc.Timeout = cfg.Local.Timeout
	case "cloud":
		pc.BaseURL = cfg.Cloud.BaseURL
		pc.APIKey = cfg.Cloud.APIKey
		pc.Timeout = cfg.Cloud.Timeout
	case "anthropic":
		pc.BaseURL = cfg.Anthropic.BaseURL
		pc.APIKey = cfg.Anthropic.APIKey
	}
	return pc
}

func modelName(cfg *config.Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return llm.DefaultModel(cfg.Backend)
}

func outputMode(cmd *cli.Command, interactive bool) output.Mode {
	return output.SelectMode(cmd.Bool("plain"), cmd.Bool("json"), cmd.Bool("quiet"), interactive)
}

// newLogger returns the diagnostics logger for mode. JSON and quiet runs keep
// stdout and stderr clean, so they get none.
func newLogger(cmd *cli.Command, mode output.Mode) *log.Logger {
	if mode == output.ModeJSON || mode == output.ModeQuiet {
		return nil
	}
	logger := log.New(cmd.Root().ErrWriter, "", log.LstdFlags)
	if cmd.Bool("verbose") {
		logger.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	return logger
}

// session bundles everything one conversation needs.
type session struct {
	engine *engine.Engine
	bus    *bus.MessageBus
	fares  *fares.Store
}

func newSession(cfg *config.Config, logger *log.Logger) (*session, error) {
	store, err := fares.OpenStore(cfg.FaresDB)
	if err != nil {
		return nil, fmt.Errorf("open fares: %w", err)
	}

	backend, err := llm.NewFromConfig(providerConfig(cfg), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init backend: %w", err)
	}

	b := bus.New(0)
	eng, err := engine.New(engine.Options{
		Backend:       backend,
		Tools:         tools.NewDefaultRegistry(store, logger),
		Bus:           b,
		SystemPrompt:  cfg.SystemPrompt,
		Stream:        cfg.Stream,
		MaxToolRounds: cfg.MaxToolRounds,
		Sampling:      llm.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		Logger:        logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	return &session{engine: eng, bus: b, fares: store}, nil
}

func (s *session) Close() error {
	return s.fares.Close()
}

func cmdAsk(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("usage: parley ask <question>")
	}
	return runAsk(ctx, cmd, strings.Join(args, " "))
}

func runAsk(ctx context.Context, cmd *cli.Command, question string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	mode := outputMode(cmd, false)
	s, err := newSession(cfg, newLogger(cmd, mode))
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.Root().Writer
	if mode == output.ModeJSON {
		jw := output.NewJSONWriter(w, s.engine.BackendName())
		jw.Attach(s.bus)
		return writeJSONTurn(ctx, jw, s.engine, question)
	}

	p := output.NewPrinterWithWriter(mode, cmd.Bool("verbose"), w)
	return streamReply(ctx, s.engine, p, question, isTerminal(w))
}

// streamReply prints one turn as it streams. The spinner only runs on a
// terminal, until the first fragment arrives.
func streamReply(ctx context.Context, eng *engine.Engine, p *output.Printer, text string, spin bool) error {
	var sp *output.SpinnerHandle
	if spin {
		sp = p.Spinner("thinking...")
	}

	started := false
	for fragment, err := range eng.SendMessage(ctx, text) {
		if err != nil {
			sp.Clear()
			if started {
				p.Token("\n")
			}
			return err
		}
		if !started {
			sp.Clear()
			p.Speaker("assistant")
			started = true
		}
		p.Token(fragment)
	}
	if started {
		p.Token("\n")
	}
	return nil
}

func writeJSONTurn(ctx context.Context, jw *output.JSONWriter, eng *engine.Engine, text string) error {
	var answer strings.Builder
	for fragment, err := range eng.SendMessage(ctx, text) {
		if err != nil {
			jw.WriteError(err) //nolint:errcheck
			return err
		}
		jw.WriteToken(fragment) //nolint:errcheck
		answer.WriteString(fragment)
	}
	return jw.WriteDone(answer.String())
}

func cmdChat(ctx context.Context, cmd *cli.Command) error {
	return runChat(ctx, cmd)
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Decide: TUI or line mode
	interactive := term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
	mode := outputMode(cmd, interactive)
	if mode == output.ModeTUI {
		return runChatTUI(ctx, cfg)
	}
	return runChatREPL(ctx, cmd, cfg, mode)
}

func runChatTUI(ctx context.Context, cfg *config.Config) error {
	// The logger is pointed at the TUI once the program exists.
	logger := log.New(io.Discard, "", log.LstdFlags)
	s, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.New(runCtx, s.engine, tui.Options{Model: modelName(cfg)})
	tuiProg := tui.NewProgram(model)
	logger.SetOutput(tuiProg.LogWriter())
	tuiProg.Attach(s.bus)

	if err := tuiProg.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runChatREPL reads one message per line until EOF or /quit.
func runChatREPL(ctx context.Context, cmd *cli.Command, cfg *config.Config, mode output.Mode) error {
	s, err := newSession(cfg, newLogger(cmd, mode))
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.Root().Writer
	p := output.NewPrinterWithWriter(mode, cmd.Bool("verbose"), w)

	var jw *output.JSONWriter
	if mode == output.ModeJSON {
		jw = output.NewJSONWriter(w, s.engine.BackendName())
		jw.Attach(s.bus)
	}

	if mode == output.ModePlain && cmd.Bool("verbose") {
		traceEvents(p, s.bus)
	}

	p.Header("Parley")
	p.KeyValue([][]string{
		{"Backend", s.engine.BackendName()},
		{"Model", modelName(cfg)},
		{"Tools", strings.Join(s.engine.Tools().Names(), ", ")},
	})
	p.Info("Type /quit to leave, /tools to list tools, /history to replay the conversation, /events for recent engine events.")

	scanner := bufio.NewScanner(cmd.Root().Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		p.Speaker("user")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/tools":
			printTools(p, s.engine.Tools())
			continue
		case "/history":
			printHistory(p, s.engine.History())
			continue
		case "/events":
			printEvents(p, s.bus.History(recentEvents))
			continue
		}

		if jw != nil {
			err = writeJSONTurn(ctx, jw, s.engine, line)
		} else {
			err = streamReply(ctx, s.engine, p, line, isTerminal(w))
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if jw == nil {
				p.Error("%v", err)
			}
		}
	}
	return scanner.Err()
}

// printHistory replays the conversation. Tool traffic between two visible
// messages is shown as a bullet list.
func printHistory(p *output.Printer, history []llm.Message) {
	if len(history) == 0 {
		p.Info("No messages yet.")
		return
	}
	p.Divider()
	var calls []output.BulletItem
	flush := func() {
		if len(calls) > 0 {
			p.BulletList(calls)
			calls = nil
		}
	}
	for _, m := range history {
		switch {
		case m.Role == llm.RoleTool:
			calls = append(calls, output.BulletItem{Level: 1, Icon: "✓", Text: m.Content})
		case len(m.ToolCalls) > 0:
			for _, call := range m.ToolCalls {
				calls = append(calls, output.BulletItem{Icon: "🔧", Text: call.Name + " " + call.Arguments.Text()})
			}
		case conversation.Visible(m):
			flush()
			p.Speaker(string(m.Role))
			p.Println(m.Content)
		}
	}
	flush()
	p.Divider()
}

// traceEvents prints every engine event as a debug line.
func traceEvents(p *output.Printer, b *bus.MessageBus) {
	b.SubscribeAll(func(msg bus.Message) {
		p.Debug("%s %s", msg.Type, describeEvent(msg))
	})
}

const recentEvents = 20

func printEvents(p *output.Printer, events []bus.Message) {
	if len(events) == 0 {
		p.Info("No events yet.")
		return
	}
	rows := make([][]string, 0, len(events))
	for _, msg := range events {
		rows = append(rows, []string{msg.Time.Format("15:04:05.000"), string(msg.Type), describeEvent(msg)})
	}
	p.Table([]string{"Time", "Event", "Detail"}, rows)
}

func describeEvent(msg bus.Message) string {
	switch msg.Type {
	case bus.MsgStateChanged:
		state, _ := msg.Payload.(string)
		return output.StateIcon(state) + " " + state
	case bus.MsgToolCalled, bus.MsgToolResult:
		return fmt.Sprintf("%s (round %d)", msg.Tool, msg.Round)
	case bus.MsgModelRequested:
		return fmt.Sprintf("turn %d, round %d", msg.Turn, msg.Round)
	default:
		return fmt.Sprintf("turn %d", msg.Turn)
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// errUsage marks a command invoked with the wrong arguments.
var errUsage = errors.New("usage")
