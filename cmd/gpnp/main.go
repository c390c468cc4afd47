// Command gpnp runs pick-and-place jobs on a grbl controlled machine.
//
// Usage:
//
//	gpnp [--config FILE] serve [--addr ADDR]
//	gpnp [--config FILE] run JOB.yaml [--auto-skip]
package main

import (
	"fmt"
	"os"

	"github.com/mastercactapus/gpnp/config"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configFile string
	logJSON    bool
	logLevel   string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configFile)
}

func newRootCmd() *cobra.Command {
	opt := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gpnp",
		Short:         "Pick-and-place job processor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Initialize(opt.logJSON, opt.logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&opt.configFile, "config", "c", "", "Config file (default ./gpnp.yaml or ~/.gpnp/gpnp.yaml)")
	cmd.PersistentFlags().BoolVar(&opt.logJSON, "log-json", false, "Log in JSON format")
	cmd.PersistentFlags().StringVar(&opt.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opt),
		newRunCmd(opt),
	)
	return cmd
}

func main() {
	err := newRootCmd().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
