package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/HexSleeves/parley/internal/config"
	"github.com/HexSleeves/parley/internal/fares"
	"github.com/HexSleeves/parley/internal/output"
	"github.com/HexSleeves/parley/internal/tools"
)

func newPrinter(cmd *cli.Command) *output.Printer {
	return output.NewPrinterWithWriter(outputMode(cmd, false), cmd.Bool("verbose"), cmd.Root().Writer)
}

func writeJSON(cmd *cli.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdInit(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.FaresDB = "fares.db"
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	p := newPrinter(cmd)
	p.Success("Config saved to %s", configPath)
	p.Info("Set OPENAI_API_KEY or ANTHROPIC_API_KEY to use a cloud backend")
	return nil
}

func cmdConfig(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = cfg.Redacted()

	if cmd.Bool("json") {
		return writeJSON(cmd, cfg)
	}

	p := newPrinter(cmd)
	p.Section(fmt.Sprintf("Configuration (%s)", cmd.String("config")))
	temperature := "backend default"
	if cfg.Temperature != nil {
		temperature = fmt.Sprintf("%g", *cfg.Temperature)
	}
	faresDB := cfg.FaresDB
	if faresDB == "" {
		faresDB = "(in memory)"
	}
	p.KeyValue([][]string{
		{"Backend", cfg.Backend},
		{"Model", modelName(cfg)},
		{"System Prompt", cfg.SystemPrompt},
		{"Stream", fmt.Sprintf("%t", cfg.Stream)},
		{"Max Tool Rounds", fmt.Sprintf("%d", cfg.MaxToolRounds)},
		{"Max Retries", fmt.Sprintf("%d", cfg.MaxRetries)},
		{"Temperature", temperature},
		{"Local URL", cfg.Local.BaseURL},
		{"Cloud URL", cfg.Cloud.BaseURL},
		{"OpenAI Key", orNone(cfg.Cloud.APIKey)},
		{"Anthropic Key", orNone(cfg.Anthropic.APIKey)},
		{"Fares DB", faresDB},
	})
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func cmdTools(ctx context.Context, cmd *cli.Command) error {
	reg := tools.NewDefaultRegistry(tools.DefaultPrices(), nil)
	if cmd.Bool("json") {
		return writeJSON(cmd, reg.Definitions())
	}
	printTools(newPrinter(cmd), reg)
	return nil
}

func printTools(p *output.Printer, reg *tools.Registry) {
	var rows [][]string
	for _, name := range reg.Names() {
		t, _ := reg.Lookup(name)
		rows = append(rows, []string{t.Name, describeParams(t.Schema), t.Description})
	}
	p.Table([]string{"Tool", "Parameters", "Description"}, rows)
}

// describeParams renders a schema as "city (string, required)".
func describeParams(s tools.Schema) string {
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		desc := name + " (" + s.Properties[name].Type
		if required[name] {
			desc += ", required"
		}
		parts = append(parts, desc+")")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}

// openFares opens the fare table named by the config and flags.
func openFares(cmd *cli.Command) (*fares.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.FaresDB == "" {
		newPrinter(cmd).Warning("fares_db is not set; using the built-in fares in memory")
	}
	store, err := fares.OpenStore(cfg.FaresDB)
	if err != nil {
		return nil, fmt.Errorf("open fares: %w", err)
	}
	return store, nil
}

func cmdFaresList(ctx context.Context, cmd *cli.Command) error {
	store, err := openFares(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return writeJSON(cmd, list)
	}

	p := newPrinter(cmd)
	if len(list) == 0 {
		p.Info("No fares found.")
		return nil
	}
	var rows [][]string
	for _, f := range list {
		rows = append(rows, []string{f.City, f.Price, f.UpdatedAt.Format("2006-01-02 15:04")})
	}
	p.Table([]string{"City", "Price", "Updated"}, rows)
	p.Printf("\n%d fare(s)\n", len(list))
	return nil
}

func cmdFaresSet(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) != 2 {
		return fmt.Errorf("%w: parley fares set <city> <price>", errUsage)
	}

	store, err := openFares(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Set(ctx, args[0], args[1]); err != nil {
		return err
	}
	newPrinter(cmd).Success("Fare to %s set to %s", args[0], args[1])
	return nil
}

func cmdFaresRemove(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) != 1 {
		return fmt.Errorf("%w: parley fares rm <city>", errUsage)
	}

	store, err := openFares(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no fare for %q", args[0])
	}
	newPrinter(cmd).Success("Removed fare to %s", args[0])
	return nil
}
