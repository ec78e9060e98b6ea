package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

func newValueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value",
		Short: "Convert KNX group values by hand",
	}
	cmd.AddCommand(newValueDecodeCmd(), newValueEncodeCmd(), newValueCheckCmd())
	return cmd
}

func newValueDecodeCmd() *cobra.Command {
	var address, dpt string

	cmd := &cobra.Command{
		Use:     "decode <hex>",
		Short:   "Show how raw bytes read as boolean, percentage and byte",
		Example: "  knxtest value decode aa --address 2/1/17\n  knxtest value decode 0c33 --dpt 9.001",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseHex(args[0])
			if err != nil {
				return err
			}
			v := knx.NewValue(raw)

			var typed *knx.Typed
			if address != "" {
				typeMap, mapErr := valueTypeMap(cmd)
				if mapErr != nil {
					return mapErr
				}
				t, decErr := typeMap.Decode(address, v)
				if decErr != nil {
					return decErr
				}
				typed = &t
			}

			var decoded any
			if dpt != "" {
				decoded, err = v.Decode(knx.DPT(dpt))
				if err != nil {
					return err
				}
			}

			return printValue(cmd.OutOrStdout(), v, func(w io.Writer) {
				if typed != nil {
					fmt.Fprintf(w, "Typed (%s):\t%s (%s)\n", address, *typed, typed.Kind())
				}
				if dpt != "" {
					fmt.Fprintf(w, "DPT %s:\t%v\n", dpt, decoded)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "group address used to pick the typed conversion")
	cmd.Flags().StringVar(&dpt, "dpt", "", "datapoint type to decode with (e.g. 9.001)")
	return cmd
}

func newValueEncodeCmd() *cobra.Command {
	var dpt string

	cmd := &cobra.Command{
		Use:     "encode <text>",
		Short:   "Build a value from text and show its raw encoding",
		Example: "  knxtest value encode true\n  knxtest value encode 66.7\n  knxtest value encode 21.5 --dpt 9.001",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				v   knx.Value
				err error
			)
			if dpt == "" {
				v, err = knx.FromString(args[0])
			} else {
				v, err = encodeText(knx.DPT(dpt), args[0])
			}
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), v, nil)
		},
	}
	cmd.Flags().StringVar(&dpt, "dpt", "", "datapoint type to encode with (default: text rules)")
	return cmd
}

// encodeText turns command-line text into the native EncodeForDPT wants
// for dpt.
func encodeText(dpt knx.DPT, text string) (knx.Value, error) {
	family, err := dpt.Main()
	if err != nil {
		return knx.Value{}, err
	}

	switch {
	case family == 1:
		return knx.EncodeForDPT(dpt, text)
	case dpt == knx.DPTPercentU8:
		n, convErr := strconv.ParseUint(strings.TrimSpace(text), 10, 8)
		if convErr != nil {
			return knx.Value{}, fmt.Errorf("%w: %q is not a byte", knx.ErrConversionFailed, text)
		}
		return knx.EncodeForDPT(dpt, byte(n))
	default:
		f, convErr := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if convErr != nil {
			return knx.Value{}, fmt.Errorf("%w: %q is not a number", knx.ErrConversionFailed, text)
		}
		return knx.EncodeForDPT(dpt, f)
	}
}

func newValueCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the percentage round-trip checks",
		Long: "check encodes 0% and 100% and every raw byte through the percentage " +
			"codec and verifies they survive the round trip. Exits non-zero on failure.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, c := range roundTripChecks() {
				status := "PASS"
				if !c.ok {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(out, "%s  %s: %s\n", status, c.name, c.detail)
			}
			if failed > 0 {
				fmt.Fprintf(out, "%d check(s) failed\n", failed)
				return errFailures
			}
			fmt.Fprintln(out, "all checks passed")
			return nil
		},
	}
}

type check struct {
	name   string
	detail string
	ok     bool
}

func roundTripChecks() []check {
	zero := knx.FromPercent(0)
	full := knx.FromPercent(100)

	checks := []check{
		{
			name:   "zero boundary",
			detail: fmt.Sprintf("0.0%% -> %s", zero),
			ok:     zero.AsPercent() == 0,
		},
		{
			name:   "full scale",
			detail: fmt.Sprintf("100.0%% -> %s", full),
			ok:     math.Abs(float64(full.AsPercent())-100) <= 0.4,
		},
	}

	worst, worstByte := 0, 0
	for b := 0; b <= math.MaxUint8; b++ {
		back := int(knx.FromPercent(float64(knx.FromByte(byte(b)).AsPercent())).AsByte())
		if d := absInt(back - b); d > worst {
			worst, worstByte = d, b
		}
	}
	checks = append(checks, check{
		name:   "byte round trip",
		detail: fmt.Sprintf("max drift %d (at raw %d)", worst, worstByte),
		ok:     worst <= 1,
	})
	return checks
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// printValue renders v with its accessor views; extra adds rows.
func printValue(w io.Writer, v knx.Value, extra func(io.Writer)) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Value:\t%s\n", v)
	fmt.Fprintf(tw, "Hex:\t%s\n", hex.EncodeToString(v.Raw()))
	fmt.Fprintf(tw, "Boolean:\t%t\n", v.AsBoolean())
	fmt.Fprintf(tw, "Percent:\t%s\n", v.AsPercent())
	fmt.Fprintf(tw, "Byte:\t%d\n", v.AsByte())
	if extra != nil {
		extra(tw)
	}
	return tw.Flush()
}

// valueTypeMap uses the configured address table when a config file was
// named, and the built-in one otherwise.
func valueTypeMap(cmd *cobra.Command) (knx.TypeMap, error) {
	if !configRequested(cmd) {
		return knx.DefaultTypeMap(), nil
	}
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return knx.TypeMap{}, err
	}
	return cfg.KNXTypeMap(), nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.ReplaceAll(s, " ", "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return raw, nil
}
