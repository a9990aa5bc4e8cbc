package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildsheet/harvester/internal/checkpoint"
	"github.com/buildsheet/harvester/internal/config"
	"github.com/buildsheet/harvester/internal/crawl"
	"github.com/buildsheet/harvester/internal/export"
	"github.com/buildsheet/harvester/internal/fetch"
	"github.com/buildsheet/harvester/internal/logging"
	"github.com/buildsheet/harvester/internal/progress"
	"github.com/buildsheet/harvester/internal/render"
)

type crawlFlags struct {
	mode             string
	resume           bool
	clearCheckpoint  bool
	output           string
	maxCategories    int
	maxSubcategories int
	maxEntities      int
	render           bool
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Starts a crawl for the selected mode",
		Long: `Walks the selected mode's category hierarchy down to company detail
pages and exports the harvested records. Interrupting with Ctrl-C writes a
checkpoint and a partial export; rerun with --resume to pick up where the
crawl left off.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.mode, "mode", "divisions", "crawl mode (see 'harvester modes')")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "resume from the mode's checkpoint")
	cmd.Flags().BoolVar(&flags.clearCheckpoint, "clear-checkpoint", false, "delete the mode's checkpoint before starting")
	cmd.Flags().StringVar(&flags.output, "output", "", "output .xlsx path (default <export dir>/<tag>_companies.xlsx)")
	cmd.Flags().IntVar(&flags.maxCategories, "max-categories", 0, "cap top-level categories (0 = all)")
	cmd.Flags().IntVar(&flags.maxSubcategories, "max-subcategories", 0, "cap subcategories per category (0 = all)")
	cmd.Flags().IntVar(&flags.maxEntities, "max-entities", 0, "cap entities per listing (0 = all)")
	cmd.Flags().BoolVar(&flags.render, "render", false, "render script-driven pages with headless Chrome")

	return cmd
}

func runCrawl(parent context.Context, flags crawlFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	profile, ok := crawl.Profile(flags.mode)
	if !ok {
		return fmt.Errorf("unknown mode %q (see 'harvester modes')", flags.mode)
	}

	ckpt := checkpoint.NewStore(cfg.Checkpoint.Dir, profile.Mode, logger)
	if flags.clearCheckpoint {
		if err := ckpt.Clear(); err != nil {
			return fmt.Errorf("clear checkpoint: %w", err)
		}
		logger.Info("checkpoint cleared", zap.String("path", ckpt.Path()))
	}

	output := flags.output
	if output == "" {
		output = filepath.Join(cfg.Export.Dir, profile.Tag+"_companies.xlsx")
	}
	exporter := export.NewWriter(output)

	client := fetch.New(fetch.Config{
		UserAgent:  cfg.Crawl.UserAgent,
		Timeout:    cfg.Crawl.Timeout(),
		Delay:      cfg.Crawl.Delay(),
		MaxRetries: cfg.Crawl.MaxRetries,
		RetryBase:  cfg.Crawl.RetryBase(),
		Logger:     logger.Named("fetch"),
	})

	renderer, closeRenderer := buildRenderer(flags, cfg, logger)
	defer closeRenderer()

	bar := newBarSink()
	hub := progress.NewHub(logger,
		progress.LogSink{Logger: logger.Named("progress")},
		progress.MetricsSink{},
		bar,
	)

	engine := crawl.New(crawl.Options{
		Profile:            profile,
		Resume:             flags.resume,
		CheckpointInterval: cfg.Checkpoint.Interval,
		MaxCategories:      flags.maxCategories,
		MaxSubcategories:   flags.maxSubcategories,
		MaxEntities:        flags.maxEntities,
		Render:             flags.render || cfg.Render.Enabled,
	}, client, renderer, ckpt, exporter, hub, logger.Named("crawl"))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := engine.Run(ctx)
	if err := hub.Close(context.Background()); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	bar.Finish()

	fmt.Println()
	fmt.Println(engine.Tracker().StatusLine())
	fmt.Printf("Discovered %d, detailed %d, skipped %d associations. Export: %s\n",
		engine.Store().Len(), engine.Store().CountDetailed(), engine.Skipped(), output)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Printf("Interrupted. Resume with: harvester crawl --mode %s --resume\n", profile.Mode)
			return nil
		}
		return fmt.Errorf("crawl: %w", runErr)
	}
	return nil
}

// buildRenderer starts headless Chrome when requested. A browser that fails
// to start degrades to plain fetching rather than failing the run.
func buildRenderer(flags crawlFlags, cfg config.Config, logger *zap.Logger) (crawl.Renderer, func()) {
	if !flags.render && !cfg.Render.Enabled {
		return render.Noop{}, func() {}
	}
	chrome, err := render.NewChrome(render.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   cfg.Render.Timeout(),
		Settle:    cfg.Render.Settle(),
	}, logger.Named("render"))
	if err != nil {
		logger.Warn("headless browser unavailable, using plain fetches", zap.Error(err))
		return render.Noop{}, func() {}
	}
	return chrome, func() {
		if err := chrome.Close(context.Background()); err != nil {
			logger.Warn("renderer close failed", zap.Error(err))
		}
	}
}

// newModesCmd lists the built-in crawl modes.
func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "Lists the available crawl modes",
		RunE: func(_ *cobra.Command, _ []string) error {
			profiles := crawl.Profiles()
			names := make([]string, 0, len(profiles))
			for name := range profiles {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				p := profiles[name]
				fmt.Printf("%-12s %s (%d levels, tag %q)\n", name, p.RootURL, len(p.Levels), p.Tag)
			}
			return nil
		},
	}
}
