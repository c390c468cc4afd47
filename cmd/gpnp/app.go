package main

import (
	"context"

	"github.com/mastercactapus/gpnp/config"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/processor"
)

// app is a configured machine and the processor running jobs on it.
type app struct {
	cfg   *config.Config
	setup *config.Setup
	p     *processor.Processor

	closeDriver func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	d, closeDriver, err := cfg.OpenDriver(ctx)
	if err != nil {
		return nil, err
	}

	s, err := cfg.Build(d)
	if err != nil {
		closeDriver()
		return nil, err
	}

	p, err := processor.New(s.Machine, s.Parts, processor.Options{
		Config:      cfg.Processor,
		JobSaver:    job.FileSaver{},
		ConfigSaver: s.State,
	})
	if err != nil {
		closeDriver()
		return nil, err
	}

	return &app{cfg: cfg, setup: s, p: p, closeDriver: closeDriver}, nil
}

func (a *app) Machine() *machine.Machine { return a.setup.Machine }

// Close saves the machine state and releases the controller.
func (a *app) Close() error {
	err := a.setup.State.SaveConfig()
	if err != nil {
		logger.Logger.Errorw("save machine state", logger.FieldError, err)
	}
	return a.closeDriver()
}

// logListener writes job progress to the log.
type logListener struct{}

func (logListener) TextStatus(runID, msg string) {
	logger.Logger.Infow(msg, logger.FieldRunID, runID)
}

func (logListener) JobState(runID string, s processor.JobState) {
	logger.Logger.Infow("job state", logger.FieldRunID, runID, logger.FieldState, s)
}
