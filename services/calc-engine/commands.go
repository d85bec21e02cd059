package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"valuation_kernel/pkg/core/assumption"
	"valuation_kernel/pkg/core/logging"
	"valuation_kernel/pkg/core/report"
	"valuation_kernel/pkg/core/scenario"
	"valuation_kernel/pkg/core/valuation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries the flags shared by every subcommand.
type cli struct {
	file    string
	format  string
	workers int
	verbose bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "calc-engine",
		Short: "Deterministic DCF valuation over assumption records",
		Long: `calc-engine reads an assumption record (JSON, Hjson or YAML), validates it,
and runs the valuation kernel on it. Nothing is fetched and nothing is cached:
the same file always produces the same numbers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cliLogger(c.verbose)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.file, "file", "f", "-", "record file, - for stdin")
	root.PersistentFlags().StringVar(&c.format, "format", "", "auto, json, hjson or yaml (default: from file extension)")
	root.PersistentFlags().IntVar(&c.workers, "workers", 0, "scenario workers, 0 = one per CPU")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.checkCmd(),
		c.valueCmd(),
		c.seriesCmd(),
		c.sensitivityCmd(),
		c.scenariosCmd(),
		c.reportCmd(),
	)
	return root
}

// cliLogger logs warnings and above, or everything with --verbose.
func cliLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return logging.New("debug")
	}
	return logging.New("warn")
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a record and audit its valuation identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := c.loadInputs(cmd)
			if err != nil {
				return err
			}
			v, s, err := valuation.Evaluate(in)
			if err != nil {
				return err
			}
			if audit := valuation.Audit(v, s); !audit.Balanced {
				for _, w := range audit.Warnings {
					c.logger.Error("audit", zap.String("warning", w))
				}
				return fmt.Errorf("valuation does not balance (max gap %g)", audit.MaxGap)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d periods, stable growth %s, terminal WACC %s\n",
				in.Horizon(), report.Percent(in.StableGrowth()), report.Percent(in.TerminalWACC()))
			return nil
		},
	}
}

func (c *cli) valueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "value",
		Short: "Print the valuation bridge as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := c.loadInputs(cmd)
			if err != nil {
				return err
			}
			v, err := valuation.CalculateValuation(in)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
}

func (c *cli) seriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "series",
		Short: "Print the bridge and per-period series as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := c.loadInputs(cmd)
			if err != nil {
				return err
			}
			v, s, err := valuation.Evaluate(in)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				Valuation valuation.Valuation `json:"valuation"`
				Series    valuation.Series    `json:"series"`
			}{v, s})
		},
	}
}

func (c *cli) sensitivityCmd() *cobra.Command {
	var (
		param  string
		values []float64
		output string
	)
	cmd := &cobra.Command{
		Use:   "sensitivity",
		Short: "Sweep one parameter and report value per share",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := scenario.ParseParameter(param)
			if err != nil {
				return err
			}
			in, err := c.loadInputs(cmd)
			if err != nil {
				return err
			}
			table, err := scenario.NewEngine(c.workers).RunSensitivity(cmd.Context(), in, p, values)
			if err != nil {
				return err
			}
			if !table.Consistent {
				c.logger.Warn("sensitivity direction contradicts economics",
					zap.String("parameter", string(p)),
					zap.String("direction", string(table.Direction)),
					zap.String("expected", string(table.Expected)))
			}
			if output == "markdown" {
				_, err := io.WriteString(cmd.OutOrStdout(), report.SensitivityMarkdown(table))
				return err
			}
			return writeJSON(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVar(&param, "param", "", "stable_growth, stable_margin or wacc_terminal")
	cmd.Flags().Float64SliceVar(&values, "values", nil, "comma-separated parameter values")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "json or markdown")
	_ = cmd.MarkFlagRequired("param")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func (c *cli) scenariosCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Blend a probability-weighted scenario set",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, format, err := c.read(cmd)
			if err != nil {
				return err
			}
			set, err := assumption.DecodeScenarioSet(data, format)
			if err != nil {
				return err
			}
			branches, err := set.Build()
			if err != nil {
				return err
			}
			c.logger.Debug("scenario set decoded", zap.Int("scenarios", len(branches)))

			res, err := scenario.NewEngine(c.workers).RunScenarios(cmd.Context(), branches)
			if err != nil {
				return err
			}
			if output == "markdown" {
				_, err := io.WriteString(cmd.OutOrStdout(), report.ScenariosMarkdown(res))
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "json or markdown")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the audit report as Markdown or HTML",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.loadRecord(cmd)
			if err != nil {
				return err
			}
			in, err := rec.Inputs()
			if err != nil {
				return err
			}
			v, s, err := valuation.Evaluate(in)
			if err != nil {
				return err
			}
			md := report.Markdown(rec.Ticker, v, s)
			switch output {
			case "markdown":
				_, err = io.WriteString(cmd.OutOrStdout(), md)
				return err
			case "html":
				html, err := report.HTML(md)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), html)
				return err
			}
			return fmt.Errorf("unknown output %q (want markdown or html)", output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "markdown", "markdown or html")
	return cmd
}

// read returns the raw input and the format to decode it with.
func (c *cli) read(cmd *cobra.Command) ([]byte, assumption.Format, error) {
	format, err := assumption.ParseFormat(c.format)
	if err != nil {
		return nil, "", err
	}
	var data []byte
	if c.file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(c.file)
		if format == assumption.FormatAuto {
			format = assumption.FormatFromPath(c.file)
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", c.file, err)
	}
	c.logger.Debug("input read",
		zap.String("file", c.file),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)))
	return data, format, nil
}

func (c *cli) loadRecord(cmd *cobra.Command) (assumption.Record, error) {
	data, format, err := c.read(cmd)
	if err != nil {
		return assumption.Record{}, err
	}
	return assumption.Decode(data, format)
}

func (c *cli) loadInputs(cmd *cobra.Command) (valuation.Inputs, error) {
	rec, err := c.loadRecord(cmd)
	if err != nil {
		return valuation.Inputs{}, err
	}
	return rec.Inputs()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
