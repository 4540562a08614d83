package main

import (
	"encoding/json"
	"fmt"

	"github.com/nsf/jsondiff"
	"github.com/spf13/cobra"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/colorfulnotion/r4300/common"
	"github.com/colorfulnotion/r4300/log"
	"github.com/colorfulnotion/r4300/r4300/performance"
	"github.com/colorfulnotion/r4300/r4300/recompiler"
)

type verifyResult struct {
	Mode  string
	State []byte
	Match jsondiff.Difference
	// Diff is the ascii diff against the reference state, empty on a full match.
	Diff string
}

// modeState runs prog under cfg and returns the final register file as JSON.
func modeState(prog performance.Program, cfg recompiler.Config) ([]byte, error) {
	core, _, err := performance.Execute(prog, cfg)
	if err != nil {
		return nil, err
	}
	defer core.Close()
	return json.Marshal(core.Snapshot().Registers)
}

func asciiDiff(a, b []byte, coloring bool) (string, error) {
	delta, err := gojsondiff.New().Compare(a, b)
	if err != nil {
		return "", err
	}
	if !delta.Modified() {
		return "", nil
	}
	var left interface{}
	if err := json.Unmarshal(a, &left); err != nil {
		return "", err
	}
	f := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	})
	return f.Format(delta)
}

func paint(on bool, color, s string) string {
	if !on {
		return s
	}
	return color + s + common.ColorReset
}

// verifyModes runs prog under every mode and compares the final state of each with
// the first one.
func verifyModes(prog performance.Program, cfg recompiler.Config, modes []recompiler.Mode, coloring bool) ([]verifyResult, error) {
	var out []verifyResult
	for _, m := range modes {
		c := cfg
		c.Mode = m
		state, err := modeState(prog, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m, err)
		}
		r := verifyResult{Mode: m.String(), State: state, Match: jsondiff.FullMatch}
		if len(out) > 0 {
			consoleOpts := jsondiff.DefaultConsoleOptions()
			r.Match, _ = jsondiff.Compare(out[0].State, state, &consoleOpts)
			if r.Match != jsondiff.FullMatch {
				if r.Diff, err = asciiDiff(out[0].State, state, coloring); err != nil {
					return nil, err
				}
			}
		}
		log.Debug(log.CLI, "verified", "mode", r.Mode, "match", r.Match.String())
		out = append(out, r)
	}
	return out, nil
}

func newVerifyCmd(opts *options) *cobra.Command {
	var (
		modeList string
		coloring bool
	)
	cmd := &cobra.Command{
		Use:   "verify <image>",
		Short: "Run an image in every mode and diff the final states",
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
			results, err := verifyModes(prog, cfg, modes, coloring)
			if err != nil {
				return err
			}
			failed := 0
			for i, r := range results {
				if i == 0 {
					fmt.Printf("%-8s reference\n", r.Mode)
					continue
				}
				if r.Match == jsondiff.FullMatch {
					fmt.Printf("%-8s %s\n", r.Mode, paint(coloring, common.ColorGreen, r.Match.String()))
					continue
				}
				failed++
				fmt.Printf("%-8s %s\n", r.Mode, paint(coloring, common.ColorRed, r.Match.String()))
				fmt.Println(r.Diff)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d modes diverge from %s", failed, len(results)-1, results[0].Mode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modeList, "modes", "pure,cached,dynarec", "Modes to run; the first is the reference")
	cmd.Flags().BoolVar(&coloring, "color", true, "Color the diff output")
	return cmd
}
