package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"permde/adapters/excel"
	"permde/adapters/mtx"
	"permde/adapters/report"
	"permde/adapters/rng"
	"permde/app"
	"permde/domain/core"
	"permde/domain/expression"
	"permde/internal"
	"permde/internal/config"
	"permde/internal/difftest"
	"permde/internal/profiling"
)

type globalOptions struct {
	envFile     string
	optionsFile string
	set         []string
	logLevel    string
}

type inputFlags struct {
	features string
	labels   string
	out      string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.features, "features", "", "Feature id file, one per line (first tab column)")
	cmd.Flags().StringVar(&f.labels, "labels", "", "Class label file, one per observation")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Output file (.tsv or .xlsx); default TSV on stdout")
	_ = cmd.MarkFlagRequired("labels")
}

// resolve builds the logger and the effective test configuration.
func (g *globalOptions) resolve() (*internal.Logger, difftest.Config, error) {
	var envFiles []string
	if g.envFile != "" {
		envFiles = append(envFiles, g.envFile)
	}
	appConfig, err := config.Load(envFiles...)
	if err != nil {
		return nil, difftest.Config{}, err
	}

	level := appConfig.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	logger := internal.NewLogger(internal.ParseLogLevel(level))

	cfg := appConfig.Test
	if g.optionsFile != "" {
		if cfg, err = config.LoadTestFile(g.optionsFile, cfg); err != nil {
			return nil, cfg, err
		}
	}
	if err := cfg.SetPairs(g.set); err != nil {
		return nil, cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	return logger, cfg, nil
}

func loadInputs(cmd *cobra.Command, matrixPath string, in *inputFlags) (*expression.CountMatrix, expression.ClassLabels, error) {
	var ids []core.FeatureID
	if in.features != "" {
		var err error
		if ids, err = mtx.ReadFeatureFile(in.features); err != nil {
			return nil, nil, err
		}
	}
	m, err := mtx.ReadMatrixFile(matrixPath, ids)
	if err != nil {
		return nil, nil, err
	}
	labels, err := mtx.NewLabelFile(in.labels).Labels(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if len(labels) != m.Observations() {
		return nil, nil, core.NewLabelLengthError(len(labels), m.Observations())
	}
	return m, labels, nil
}

func newTestCmd(g *globalOptions) *cobra.Command {
	in := &inputFlags{}
	var class string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "test [matrix.mtx]",
		Short: "Test one class against all other observations",
		Long: `Run a single differential-mean test: observations labelled --class form
group 1, everything else group 2.

Example: permde test counts.mtx --features genes.tsv --labels cells.txt --class T --set permutations=999`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := g.resolve()
			if err != nil {
				return err
			}
			defer logger.Sync()

			m, classes, err := loadInputs(cmd, args[0], in)
			if err != nil {
				return err
			}
			target, err := core.ParseClassName(class)
			if err != nil {
				return core.NewConfigurationError("class", err.Error())
			}
			labels, err := classes.OneVsRest(target)
			if err != nil {
				return err
			}

			tester := difftest.NewTester(rng.NewSeededRNG(), difftest.WithLogger(logger))
			table, err := tester.Run(cmd.Context(), m, labels, cfg)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(table)
			}
			if err := writeTables(cmd, in.out, false, func(emit emitFunc) error { return emit(target, table) }); err != nil {
				return err
			}
			profile, err := profiling.NewResultProfiler(profiling.DefaultAlpha).Profile(table)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "tested %d of %d features, %d significant at %.2g (emp_pval_adj), %d degenerate\n",
				profile.Tested, profile.Considered, profile.Significant, profile.Alpha, profile.Degenerate)
			return nil
		},
	}

	in.register(cmd)
	cmd.Flags().StringVar(&class, "class", "", "Class tested against the rest")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result table as JSON on stdout")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func newSweepCmd(g *globalOptions) *cobra.Command {
	in := &inputFlags{}
	var only []string

	cmd := &cobra.Command{
		Use:   "sweep [matrix.mtx]",
		Short: "Test every class against the rest, one class at a time",
		Long: `Run one-vs-rest tests for each class in sorted order. Each class gets a
seed derived from the configured seed and its name, so single classes can be
rerun with identical results.

Example: permde sweep counts.mtx --labels cells.txt -o markers.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := g.resolve()
			if err != nil {
				return err
			}
			defer logger.Sync()

			m, classes, err := loadInputs(cmd, args[0], in)
			if err != nil {
				return err
			}
			var subset []core.ClassName
			for _, name := range only {
				c, err := core.ParseClassName(name)
				if err != nil {
					return core.NewConfigurationError("only", err.Error())
				}
				subset = append(subset, c)
			}

			tester := difftest.NewTester(rng.NewSeededRNG(), difftest.WithLogger(logger))
			service := app.NewMarkerSweepService(tester, nil, logger)

			var result *app.SweepResult
			err = writeTables(cmd, in.out, true, func(emit emitFunc) error {
				var err error
				result, err = service.Run(cmd.Context(), app.MarkerSweepRequest{
					Matrix:  m,
					Labels:  classes,
					Classes: subset,
					Config:  cfg,
				}, app.TableHandler(emit))
				return err
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.ErrOrStderr(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "class\tmembers\ttested\tsignificant\tdegenerate")
			for _, s := range result.Classes {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", s.Class, s.Members, s.Profile.Tested, s.Significant, s.Profile.Degenerate)
			}
			return w.Flush()
		},
	}

	in.register(cmd)
	cmd.Flags().StringSliceVar(&only, "only", nil, "Restrict the sweep to these classes (comma separated)")
	return cmd
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes [labels.txt]",
		Short: "List classes and their sizes, largest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := mtx.NewLabelFile(args[0]).Labels(cmd.Context())
			if err != nil {
				return err
			}
			counts := make(map[core.ClassName]int)
			for _, c := range labels {
				counts[c]++
			}
			names := labels.Classes()
			sort.SliceStable(names, func(i, j int) bool { return counts[names[i]] > counts[names[j]] })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
			}
			return w.Flush()
		},
	}
}

type emitFunc func(class core.ClassName, table *expression.ResultTable) error

// writeTables hands run an emit function backed by the format chosen from out.
func writeTables(cmd *cobra.Command, out string, withClass bool, run func(emitFunc) error) error {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".xlsx":
		wb := excel.NewWorkbook()
		defer wb.Close()
		if err := run(wb.AddTable); err != nil {
			return err
		}
		return wb.SaveAs(out)
	case "", ".tsv", ".txt":
		w := cmd.OutOrStdout()
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}
		return run(report.NewTSVWriter(w, withClass).Write)
	default:
		return core.NewConfigurationError("out", fmt.Sprintf("unsupported output %q (want .tsv or .xlsx)", out))
	}
}
