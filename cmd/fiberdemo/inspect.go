package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stealthrocket/fiber/inspect"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <snapshot>",
	Short: "Print a snapshot written by run --snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectSnapshot,
}

func init() {
	inspectCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	inspectCmd.Flags().BoolP("verbose", "v", false, "print stack sizes and wait counts")
}

func inspectSnapshot(cmd *cobra.Command, args []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to get json flag: %w", err)
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return fmt.Errorf("failed to get verbose flag: %w", err)
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	state, err := inspect.Inspect(b)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		js, err := state.MarshalIndent()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", js)
		return err
	}

	format := "%v\n"
	if verbose {
		format = "%+v\n"
	}
	fmt.Fprintf(out, "time:    %s\n", state.Time().Format("2006-01-02T15:04:05.000Z07:00"))
	fmt.Fprintf(out, "ticks:   %d\n", state.Ticks())
	fmt.Fprintf(out, "pending: %d\n", state.Pending())
	for i := range state.NumFiber() {
		fmt.Fprintf(out, format, state.Fiber(i))
	}
	return nil
}
