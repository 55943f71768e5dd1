package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hiro-org/hiro/internal/common/config"
	"github.com/hiro-org/hiro/internal/common/logger"
)

// NewRootCommand assembles the CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hiro",
		Short:         "Hierarchical research orchestrator",
		Long:          "hiro decomposes a goal into a graph of subtasks, executes them with LLM-backed agents, and aggregates the results bottom-up.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().Bool("quiet", false, "suppress log output")
	cmd.PersistentFlags().String("log-format", "", "log format (text or json)")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newResumeCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// setup loads the configuration and builds the process logger from it plus
// the persistent flags.
func setup(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	quiet, _ := cmd.Flags().GetBool("quiet")
	format, _ := cmd.Flags().GetString("log-format")
	if format == "" {
		format = cfg.LogFormat
	}

	var opts []logger.Option
	if debug || cfg.LogLevel == "debug" {
		opts = append(opts, logger.WithDebug())
	}
	if quiet || cfg.Quiet {
		opts = append(opts, logger.WithQuiet())
	}
	opts = append(opts, logger.WithFormat(format))
	return cfg, logger.NewLogger(opts...), nil
}
