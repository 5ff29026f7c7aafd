package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/parley/internal/config"
)

// version is set via ldflags at build time.
// e.g. -ldflags "-X main.version=1.2.3"
var version = "dev"

// newApp creates the CLI application with all flags and commands.
func newApp() *cli.Command {
	return &cli.Command{
		Name:        "parley",
		Usage:       "Chat with a local or cloud language model",
		Version:     version,
		UsageText:   "parley [global options] [command] [arguments...]",
		Description: "Parley sends your messages to Ollama, OpenAI or Anthropic and lets the model call local tools before it answers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.DefaultPath,
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Backend: local (ollama), cloud (openai), anthropic",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model name (backend default when empty)",
			},
			&cli.StringFlag{
				Name:  "system",
				Usage: "System prompt",
			},
			&cli.BoolFlag{
				Name:  "no-stream",
				Usage: "Wait for whole replies instead of streaming tokens",
			},
			&cli.IntFlag{
				Name:  "max-tool-rounds",
				Usage: "Maximum tool-call rounds per turn",
			},
			&cli.StringFlag{
				Name:  "fares-db",
				Usage: "SQLite file holding ticket fares (in memory when empty)",
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "Plain output (no TUI)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output newline-delimited JSON events (mutually exclusive with --quiet and --plain)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Print only the answer (mutually exclusive with --json and --plain)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Verbose logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			// Validate mutual exclusivity of output format flags
			flagCount := 0
			for _, name := range []string{"quiet", "json", "plain"} {
				if cmd.Bool(name) {
					flagCount++
				}
			}
			if flagCount > 1 {
				return ctx, fmt.Errorf("flags --quiet, --json, and --plain are mutually exclusive")
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Ask one question and print the answer",
				ArgsUsage: "<question>",
				Action:    cmdAsk,
			},
			{
				Name:   "chat",
				Usage:  "Start an interactive conversation",
				Action: cmdChat,
			},
			{
				Name:  "init",
				Usage: "Write a default config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Overwrite an existing file"},
				},
				Action: cmdInit,
			},
			{
				Name:   "config",
				Usage:  "Show the effective configuration",
				Action: cmdConfig,
			},
			{
				Name:   "tools",
				Usage:  "List the tools the model can call",
				Action: cmdTools,
			},
			{
				Name:  "fares",
				Usage: "Manage the ticket fares behind getTicketPrice",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List fares",
						Action: cmdFaresList,
					},
					{
						Name:      "set",
						Usage:     "Add or change a fare",
						ArgsUsage: "<city> <price>",
						Action:    cmdFaresSet,
					},
					{
						Name:      "rm",
						Aliases:   []string{"remove"},
						Usage:     "Remove a fare",
						ArgsUsage: "<city>",
						Action:    cmdFaresRemove,
					},
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			// Default action: treat remaining args as a question (implicit ask)
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return runChat(ctx, cmd)
			}
			return runAsk(ctx, cmd, strings.Join(args, " "))
		},
	}
}
