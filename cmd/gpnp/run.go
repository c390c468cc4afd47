package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/processor"
	"github.com/spf13/cobra"
)

func newRunCmd(opt *rootOptions) *cobra.Command {
	var autoSkip, home bool
	cmd := &cobra.Command{
		Use:   "run JOB",
		Short: "Run a job to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opt.load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.p.AddListener(logListener{})

			if home {
				err = a.Machine().Home(ctx)
				if err != nil {
					return err
				}
			}

			j, err := job.Load(args[0])
			if err != nil {
				return err
			}
			return runJob(ctx, a.p, j, autoSkip)
		},
	}
	cmd.Flags().BoolVar(&autoSkip, "auto-skip", false, "Skip placements that fail instead of stopping")
	cmd.Flags().BoolVar(&home, "home", false, "Home the machine before starting")
	return cmd
}

// runJob steps p through j. Failed steps are skipped when autoSkip is set
// and the step allows it; any other failure aborts the run.
func runJob(ctx context.Context, p *processor.Processor, j *job.Job, autoSkip bool) error {
	err := p.Initialize(ctx, j)
	if err != nil {
		return err
	}

	for {
		ok, err := p.Next(ctx)
		if err != nil && autoSkip && ctx.Err() == nil && p.CanSkip() {
			logger.Logger.Warnw("skipping failed step", logger.FieldState, p.State(), logger.FieldError, err)
			err = p.Skip(ctx)
			if err == nil {
				continue
			}
		}
		if err != nil {
			abortErr := p.Abort(context.Background())
			if abortErr != nil {
				logger.Logger.Errorw("abort job", logger.FieldError, abortErr)
			}
			return err
		}
		if !ok {
			return nil
		}
	}
}
