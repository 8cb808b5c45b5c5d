package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"permde/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "permde",
		Short: "Permutation-based differential-mean testing for sparse count matrices",
		Long: `permde compares two groups of observations feature by feature using the
difference of geometric means, a label-permutation null, empirical and Gaussian
p-values, and Benjamini-Hochberg correction.

Options resolve in order: defaults, PERMDE_* environment (and .env), --options
file (.toml/.yaml), then --set key=value overrides.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env", "", "Path to a .env file (default: ./.env if present)")
	flags.StringVar(&opts.optionsFile, "options", "", "TOML or YAML file with test options")
	flags.StringArrayVar(&opts.set, "set", nil, "Override a test option, key=value (repeatable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: error|warn|info|debug|trace (default: LOG_LEVEL or info)")

	rootCmd.AddCommand(
		newTestCmd(opts),
		newSweepCmd(opts),
		newClassesCmd(),
	)
	return rootCmd
}

// exitCode separates caller mistakes from bad data and internal failures.
func exitCode(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeConfigInvalid:
		return 2
	case errors.CodeInvalidInput:
		return 3
	default:
		return 1
	}
}
