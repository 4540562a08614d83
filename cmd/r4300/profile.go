package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/r4300/r4300/performance"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

func parseModes(list string) ([]recompiler.Mode, error) {
	var modes []recompiler.Mode
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		m, err := recompiler.ParseMode(s)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no modes in %q", list)
	}
	return modes, nil
}

func printReport(w io.Writer, report *performance.Report) {
	fmt.Fprintln(w, "="+strings.Repeat("=", 99))
	fmt.Fprintf(w, "%-18s %12s %12s %12s %12s %8s %10s %8s\n",
		"Mode", "Avg", "Min", "Max", "Count", "Units", "Code", "Inval")
	fmt.Fprintln(w, "-"+strings.Repeat("-", 99))
	for _, rs := range report.Results {
		name := rs.Mode
		if rs.Mode == recompiler.DynamicRecompiler.String() {
			name += "/" + rs.Backend
		}
		fmt.Fprintf(w, "%-18s %12s %12s %12s %12d %8d %9dB %8d\n",
			name,
			time.Duration(rs.AvgNs),
			time.Duration(rs.MinNs),
			time.Duration(rs.MaxNs),
			rs.Stats.Count,
			rs.Stats.Units,
			rs.Stats.CodeBytes,
			rs.Stats.Invalidations)
	}
	fmt.Fprintln(w, "-"+strings.Repeat("-", 99))
	if s, ok := report.Speedup("pure", "dynarec"); ok {
		fmt.Fprintf(w, "dynarec speedup over pure: %.2fx\n", s)
	}
	if s, ok := report.Speedup("pure", "cached"); ok {
		fmt.Fprintf(w, "cached speedup over pure:  %.2fx\n", s)
	}
}

func newProfileCmd(opts *options) *cobra.Command {
	var (
		modeList  string
		runs      int
		outputDir string
		top       int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "profile <image>",
		Short: "Time an image under several modes and chart the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			modes, err := parseModes(modeList)
			if err != nil {
				return err
			}
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			report, err := performance.Compare(prog, cfg, modes, runs)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(report)
			}
			printReport(os.Stdout, report)
			if outputDir == "" {
				return nil
			}
			filename, err := performance.GenerateAllCharts(report, &performance.ChartConfig{OutputDir: outputDir, TopUnits: top})
			if err != nil {
				return err
			}
			fmt.Printf("Generated: %s\n", filename)
			return nil
		},
	}
	cmd.Flags().StringVar(&modeList, "modes", "pure,cached,dynarec", "Modes to compare")
	cmd.Flags().IntVar(&runs, "runs", 3, "Runs per mode")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "results", "Directory for the HTML charts, empty to skip")
	cmd.Flags().IntVar(&top, "top", 16, "Units shown in the hot unit chart")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
