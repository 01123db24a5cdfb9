package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"stripe-fire-sync/internal/app"
	"stripe-fire-sync/internal/config"
	"stripe-fire-sync/internal/service/syncer"
)

type jobOptions struct {
	JobsFile    string
	Collection  string
	Variant     string
	NameKey     string
	PriceKey    string
	CategoryKey string
	RefKey      string
}

// jobsFor resolves the jobs of one invocation: the jobs file when given,
// otherwise the environment's default job overlaid with the flags.
func jobsFor(def config.Job, opts jobOptions, dryRun bool) ([]config.Job, error) {
	var jobs []config.Job
	if opts.JobsFile != "" {
		loaded, err := config.LoadJobs(opts.JobsFile)
		if err != nil {
			return nil, err
		}
		jobs = loaded
	} else {
		job := def
		if opts.Collection != "" {
			job.Collection = opts.Collection
		}
		if opts.Variant != "" {
			job.Variant = opts.Variant
		}
		if opts.NameKey != "" {
			job.NameKey = opts.NameKey
		}
		if opts.PriceKey != "" {
			job.PriceKey = opts.PriceKey
		}
		if opts.CategoryKey != "" {
			job.CategoryKey = opts.CategoryKey
		}
		if opts.RefKey != "" {
			job.RefKey = opts.RefKey
		}
		normalized, err := job.Normalize()
		if err != nil {
			return nil, err
		}
		jobs = []config.Job{normalized}
	}
	if dryRun {
		for i := range jobs {
			jobs[i].DryRun = true
		}
	}
	return jobs, nil
}

func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, config.Config, *log.Logger, error) {
	logger := log.New(cmd.ErrOrStderr(), "[stripesync] ", log.LstdFlags|log.LUTC)
	if loaded, err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, config.Config{}, nil, fmt.Errorf("load %s: %w", envFile, err)
	} else if loaded {
		logger.Printf("loaded %s", envFile)
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	return ctx, cancel, config.FromEnv(), logger, nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	return runJobs(cmd, false)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	return runJobs(cmd, true)
}

func runJobs(cmd *cobra.Command, dryRun bool) error {
	ctx, cancel, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	jobs, err := jobsFor(cfg.DefaultJob, jobOpts, dryRun)
	if err != nil {
		return err
	}

	syncApp, err := app.NewSyncer(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer syncApp.Close()

	failed := 0
	for _, job := range jobs {
		report, err := syncApp.Service.Run(ctx, job)
		if report != nil {
			if werr := writeReport(cmd.OutOrStdout(), report); werr != nil {
				return werr
			}
		}
		if err != nil {
			logger.Printf("collection=%s error=%v", job.Collection, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}
	return nil
}

func runPurge(cmd *cobra.Command, _ []string) error {
	ctx, cancel, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	jobs, err := jobsFor(cfg.DefaultJob, jobOptions{Collection: jobOpts.Collection, RefKey: jobOpts.RefKey}, false)
	if err != nil {
		return err
	}
	job := jobs[0]

	syncApp, err := app.NewSyncer(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer syncApp.Close()

	n, err := syncApp.Service.Purge(ctx, job.Collection, job.RefKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s on %d documents in %s\n", job.RefKey, n, job.Collection)
	return nil
}

func writeReport(w io.Writer, report *syncer.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
