package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flaky-eval/classifier"
	"flaky-eval/dataset"
	"flaky-eval/evaluation"
	"flaky-eval/logger"
	"flaky-eval/prompt"
	"flaky-eval/store"
	"flaky-eval/taxonomy"

	"github.com/urfave/cli/v3"
)

// Process exit codes.
const (
	exitFatal         = 1
	exitInterrupted   = 2
	exitNothingScored = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		code := exitFatal
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "flaky-eval",
		Usage: "evaluate LLM root cause classification of flaky tests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:    "input-json",
				Aliases: []string{"i"},
				Usage:   "directory of labeled example JSON files",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "model identifier (default gpt-4)",
			},
			&cli.StringFlag{
				Name:    "save-path",
				Aliases: []string{"o"},
				Usage:   "result log path (default root_cause_eval_full.jsonl)",
			},
			&cli.BoolFlag{
				Name:  "no-patch",
				Usage: "classify from the issue description only",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "classifier provider: openai or gemini",
			},
		},
		Action: runEval,
		Commands: []*cli.Command{
			statsCommand(),
			runsCommand(),
			taxonomyCommand(),
		},
	}
}

// setup loads configuration, applies command-line overrides and builds the
// logger. The caller owns the returned logger.
func setup(cmd *cli.Command) (*Config, logger.Logger, error) {
	cfg, err := LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cmd, cfg)

	level := logger.ParseLevel(cfg.Logger.Level)
	loggers := []logger.Logger{logger.NewConsole(level, cfg.Logger.Console.Color)}
	if cfg.Logger.Structured.Enabled {
		structLog, err := logger.NewStructured(cfg.Logger.Structured.Path, level)
		if err != nil {
			return nil, nil, fmt.Errorf("init structured logger: %w", err)
		}
		loggers = append(loggers, structLog)
	}
	return cfg, logger.Multi(loggers...), nil
}

func applyFlags(cmd *cli.Command, cfg *Config) {
	if v := cmd.String("log-level"); v != "" {
		cfg.Logger.Level = v
	}
	if v := cmd.String("input-json"); v != "" {
		cfg.InputDir = v
	}
	if v := cmd.String("model"); v != "" {
		cfg.Classifier.Model = v
	}
	if v := cmd.String("save-path"); v != "" {
		cfg.Output = v
	}
	if v := cmd.String("provider"); v != "" {
		cfg.Classifier.Provider = v
	}
	if cmd.Bool("no-patch") {
		off := false
		cfg.IncludePatch = &off
	}
}

func loadTaxonomy(cfg *Config) (*taxonomy.Taxonomy, error) {
	if cfg.Taxonomy.Path == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.Load(cfg.Taxonomy.Path)
}

func runEval(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	defer log.Close()

	if cfg.InputDir == "" {
		return cli.Exit("input directory is required (--input-json or input_dir)", exitFatal)
	}
	includePatch := *cfg.IncludePatch

	tax, err := loadTaxonomy(cfg)
	if err != nil {
		log.Error("taxonomy.load_failed", logger.Err(err))
		return cli.Exit(err.Error(), exitFatal)
	}

	apiKey := cfg.ResolveAPIKey()
	if apiKey == "" {
		return cli.Exit(fmt.Sprintf("no API key for provider %q (set classifier.api_key or the provider's environment variable)", cfg.Classifier.Provider), exitFatal)
	}

	examples, err := dataset.Load(cfg.InputDir)
	if err != nil {
		log.Error("dataset.load_failed", logger.String("dir", cfg.InputDir), logger.Err(err))
		return cli.Exit(err.Error(), exitFatal)
	}

	cls, err := classifier.New(ctx, cfg.ClassifierSettings(apiKey), log)
	if err != nil {
		log.Error("classifier.init_failed", logger.Err(err))
		return cli.Exit(err.Error(), exitFatal)
	}

	st, err := store.Open(cfg.StoreSettings(), log)
	if err != nil {
		log.Error("store.init_failed", logger.Err(err))
		return cli.Exit(err.Error(), exitFatal)
	}
	if st != nil {
		defer st.Close()
	}

	results, err := evaluation.CreateResultLog(cfg.Output)
	if err != nil {
		log.Error("output.open_failed", logger.String("path", cfg.Output), logger.Err(err))
		return cli.Exit(err.Error(), exitFatal)
	}
	defer results.Close()

	ev, err := evaluation.New(evaluation.Config{
		Taxonomy:     tax,
		Prompts:      prompt.NewBuilder(tax, cfg.Prompt.MaxPatchBytes),
		Classifier:   cls,
		Results:      results,
		Store:        st,
		Progress:     evaluation.NewConsoleProgress(os.Stderr),
		Log:          log,
		Provider:     cfg.Classifier.Provider,
		Model:        cfg.Classifier.Model,
		InputDir:     cfg.InputDir,
		IncludePatch: includePatch,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	summary, err := ev.Run(ctx, examples)
	if err != nil {
		log.Error("eval.aborted", logger.String("output", cfg.Output), logger.Err(err))
		return cli.Exit(err.Error(), exitFatal)
	}

	summary.Print(os.Stdout)
	log.Info("eval.results_written",
		logger.String("output", cfg.Output),
		logger.Int("records", results.Count()),
	)

	switch {
	case summary.Interrupted:
		log.Warn("eval.interrupted", logger.Int("scored", summary.Total))
		return cli.Exit("", exitInterrupted)
	case summary.Total == 0:
		return cli.Exit("", exitNothingScored)
	}
	return nil
}
