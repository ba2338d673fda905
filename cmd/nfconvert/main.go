package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/InfraSecConsult/nfconvert-go/internal/capture"
	"github.com/InfraSecConsult/nfconvert-go/internal/cicconv"
	"github.com/InfraSecConsult/nfconvert-go/internal/config"
	"github.com/InfraSecConsult/nfconvert-go/internal/normalize"
	"github.com/InfraSecConsult/nfconvert-go/internal/orchestrate"
	"github.com/InfraSecConsult/nfconvert-go/internal/repository"
	"github.com/InfraSecConsult/nfconvert-go/internal/transmit"
)

// DependencyProvider allows injection for testability
// (in production, use real implementations)
type DependencyProvider struct {
	Launcher    orchestrate.Launcher
	Transmitter orchestrate.Transmitter
	Normalizer  orchestrate.Normalizer
	Repository  repository.Repository
}

// launcherAdapter narrows *capture.Session to the orchestrator's
// Session interface.
type launcherAdapter struct {
	launcher *capture.Launcher
}

func (a launcherAdapter) Start(ctx context.Context, endpoint, scratchDir string) (orchestrate.Session, error) {
	s, err := a.launcher.Start(ctx, endpoint, scratchDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newRootCmd wires up the CLI with the given dependencies
func newRootCmd(provider *DependencyProvider) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "nfconvert",
		Short: "Convert packet capture traces into normalized NetFlow record files",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(newConvertCmd(provider), newCSV2NFCmd(), newHistoryCmd(provider))
	return rootCmd
}

func newConvertCmd(provider *DependencyProvider) *cobra.Command {
	var (
		configPath   string
		inputDir     string
		scratchDir   string
		outputDir    string
		merge        bool
		mergedOutput string
		endpoint     string
		traceExt     string
		historyDB    string
		collectorBin string
		replayBin    string
		dumpBin      string
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Replay traces through the collector and write normalized flow files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			override := func(flag string, dst *string, v string) {
				if cmd.Flags().Changed(flag) {
					*dst = v
				}
			}
			override("input-dir", &cfg.InputDir, inputDir)
			override("scratch-dir", &cfg.ScratchDir, scratchDir)
			override("output-dir", &cfg.OutputDir, outputDir)
			override("merged-output", &cfg.MergedOutput, mergedOutput)
			override("endpoint", &cfg.Capture.Endpoint, endpoint)
			override("trace-ext", &cfg.TraceExt, traceExt)
			override("history-db", &cfg.HistoryDB, historyDB)
			override("collector-bin", &cfg.Tools.Collector, collectorBin)
			override("replay-bin", &cfg.Tools.Replay, replayBin)
			override("dump-bin", &cfg.Tools.Dump, dumpBin)
			if cmd.Flags().Changed("merge") {
				cfg.Merge = merge
			}

			return runConvert(cmd, cfg, provider, showProgress)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "Directory scanned recursively for traces")
	cmd.Flags().StringVar(&scratchDir, "scratch-dir", "", "Scratch directory for collector output")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory for per-input flow files")
	cmd.Flags().BoolVar(&merge, "merge", false, "Merge all traces into a single flow file")
	cmd.Flags().StringVar(&mergedOutput, "merged-output", "", "Path of the merged flow file")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "UDP endpoint the collector binds (host:port)")
	cmd.Flags().StringVar(&traceExt, "trace-ext", "", "Trace file extension")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "Path to the SQLite conversion history database")
	cmd.Flags().StringVar(&collectorBin, "collector-bin", "", "Collector executable")
	cmd.Flags().StringVar(&replayBin, "replay-bin", "", "Flow-export replay executable")
	cmd.Flags().StringVar(&dumpBin, "dump-bin", "", "Dump executable")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show a progress bar")
	return cmd
}

func runConvert(cmd *cobra.Command, cfg *config.Config, provider *DependencyProvider, showProgress bool) error {
	bindWait, err := cfg.BindWait()
	if err != nil {
		return err
	}
	stopWait, err := cfg.StopWait()
	if err != nil {
		return err
	}

	// If not injected, use real implementations
	if provider.Launcher == nil || provider.Transmitter == nil || provider.Normalizer == nil {
		provider.Launcher = launcherAdapter{capture.NewLauncher(capture.Config{
			CollectorBin: cfg.Tools.Collector,
			BindWait:     bindWait,
			StopWait:     stopWait,
		})}
		provider.Transmitter = transmit.NewReplayer(cfg.Tools.Replay, 0)
		provider.Normalizer = normalize.NewNormalizer(cfg.Tools.Dump)
	}
	if provider.Repository == nil && cfg.HistoryDB != "" {
		repo, err := repository.NewSQLiteRepository(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer repo.Close()
		provider.Repository = repo
	}

	mode := orchestrate.PerInput
	if cfg.Merge {
		mode = orchestrate.MergeAll
	}
	opts := orchestrate.Options{
		InputDir:     cfg.InputDir,
		ScratchDir:   cfg.ScratchDir,
		OutputDir:    cfg.OutputDir,
		MergedOutput: cfg.MergedOutput,
		Endpoint:     cfg.Capture.Endpoint,
		Mode:         mode,
		TraceExt:     cfg.TraceExt,
	}

	var extra []orchestrate.Option
	if provider.Repository != nil {
		extra = append(extra, orchestrate.WithRepository(provider.Repository))
	}
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(-1, "converting traces")
		extra = append(extra, orchestrate.WithUnitCallback(func(orchestrate.UnitResult) {
			_ = bar.Add(1)
		}))
	}

	start := time.Now()
	report, runErr := orchestrate.New(opts, provider.Launcher, provider.Transmitter, provider.Normalizer, extra...).
		Run(cmd.Context())
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.OutOrStdout())
	}

	printReport(cmd, report)
	if runErr != nil {
		return runErr
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("conversion finished")
	return nil
}

func printReport(cmd *cobra.Command, report *orchestrate.Report) {
	out := cmd.OutOrStdout()
	for _, unit := range report.Units {
		if unit.Err != nil {
			fmt.Fprintf(out, "FAILED    %s: %v\n", unit.Trace.Path, unit.Err)
			continue
		}
		fmt.Fprintf(out, "converted %s -> %s\n", unit.Trace.Path, unit.FlowFile)
	}
	if report.Err != nil && report.FailedUnit() == nil {
		fmt.Fprintf(out, "batch failed: %v\n", report.Err)
	}
}

func newCSV2NFCmd() *cobra.Command {
	var (
		recursive bool
		meridiem  string
	)

	cmd := &cobra.Command{
		Use:   "csv2nf <benign-label> <out-dir> <in-path>",
		Short: "Convert CIC datasets in CSV files to categorized NetFlow v5 files",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			benignLabel, outDir, inPath := args[0], args[1], args[2]
			m := cicconv.MeridiemNone
			switch meridiem {
			case "":
			case "am":
				m = cicconv.MeridiemAM
			case "pm":
				m = cicconv.MeridiemPM
			default:
				return fmt.Errorf("invalid meridiem %q, want am or pm", meridiem)
			}
			if recursive {
				return cicconv.ConvertTree(inPath, outDir, m, benignLabel)
			}
			return cicconv.ConvertFile(inPath, outDir, m, benignLabel)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "Convert every CSV file under <in-path>")
	cmd.Flags().StringVar(&meridiem, "meridiem", "", "Append am or pm to ambiguous timestamps")
	return cmd
}

func newHistoryCmd(provider *DependencyProvider) *cobra.Command {
	var (
		dbPath  string
		batchID int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded conversion batches and their units",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := provider.Repository
			if repo == nil {
				r, err := repository.NewSQLiteRepository(dbPath)
				if err != nil {
					return fmt.Errorf("failed to open history database: %w", err)
				}
				defer r.Close()
				repo = r
			}
			if batchID > 0 {
				return printUnits(cmd, repo, batchID)
			}
			return printBatches(cmd, repo)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db-path", "nfconvert-history.sqlite", "Path to the SQLite history database")
	cmd.Flags().Int64Var(&batchID, "batch", 0, "Show the units of one batch")
	return cmd
}

func printBatches(cmd *cobra.Command, repo repository.Repository) error {
	batches, err := repo.ListBatches()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "Mode", "Input", "Started", "Status", "Failure"})
	for _, b := range batches {
		table.Append([]string{
			strconv.FormatInt(b.ID, 10), b.Mode, b.InputDir,
			b.StartedAt.Format("2006-01-02 15:04:05"), b.Status, b.Failure,
		})
	}
	table.Render()
	return nil
}

func printUnits(cmd *cobra.Command, repo repository.Repository, batchID int64) error {
	units, err := repo.ListUnits(batchID)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Key", "Trace", "Flow File", "Status", "Error"})
	for _, u := range units {
		table.Append([]string{
			strconv.Itoa(u.SortKey), u.TracePath, u.FlowFile, u.Status, u.Error,
		})
	}
	table.Render()
	return nil
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	provider := &DependencyProvider{}
	if err := newRootCmd(provider).Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
