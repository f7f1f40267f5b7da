package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"flaky-eval/evaluation"
	"flaky-eval/logger"
	"flaky-eval/store"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "recompute accuracy from a result log",
		ArgsUsage: "<results.jsonl>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("stats: result log path is required", exitFatal)
			}
			records, err := evaluation.ReadResultFile(path)
			if err != nil {
				return cli.Exit(err.Error(), exitFatal)
			}

			inconsistent := 0
			for _, r := range records {
				if !r.Consistent() {
					inconsistent++
				}
			}

			summary := evaluation.Recompute(records)
			summary.Print(os.Stdout)
			if summary.Total == 0 {
				return cli.Exit("", exitNothingScored)
			}
			fmt.Println()
			summary.PrintBreakdown(os.Stdout)
			if inconsistent > 0 {
				color.New(color.FgYellow).Fprintf(os.Stderr,
					"warning: %d records have a match flag that disagrees with their labels\n", inconsistent)
			}
			return nil
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "list evaluation runs recorded in the configured store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "filter-model",
				Usage: "only show runs for this model",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum number of runs to list",
				Value: 20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return cli.Exit(err.Error(), exitFatal)
			}
			defer log.Close()

			st, err := store.Open(cfg.StoreSettings(), log)
			if err != nil {
				log.Error("store.init_failed", logger.Err(err))
				return cli.Exit(err.Error(), exitFatal)
			}
			if st == nil {
				return cli.Exit("runs: no store configured (set store.type)", exitFatal)
			}
			defer st.Close()

			runs, err := st.ListRuns(ctx, store.RunFilter{
				Model: cmd.String("filter-model"),
				Limit: int(cmd.Int("limit")),
			})
			if err != nil {
				return cli.Exit(err.Error(), exitFatal)
			}
			printRuns(runs)
			return nil
		},
	}
}

func printRuns(runs []*store.Run) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tPATCH\tSTATUS\tSCORED\tACCURACY\tSTARTED")
	for _, r := range runs {
		acc := "n/a"
		if r.Total > 0 {
			acc = evaluation.FormatPercent(float64(r.Correct) / float64(r.Total))
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%d\t%s\t%s\n",
			r.ID, r.Model, r.IncludePatch, r.Status, r.Total, acc,
			r.StartedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func taxonomyCommand() *cli.Command {
	return &cli.Command{
		Name:  "taxonomy",
		Usage: "print the active root cause categories",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig(cmd.String("config"))
			if err != nil {
				return cli.Exit(err.Error(), exitFatal)
			}
			tax, err := loadTaxonomy(cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFatal)
			}
			name := color.New(color.Bold)
			for _, c := range tax.Categories() {
				fmt.Printf("%s: %s\n", name.Sprint(c.Name), c.Description)
			}
			return nil
		},
	}
}
