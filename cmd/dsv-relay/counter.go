package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsvrelay/dsv-relay/internal/practicecode"
)

var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Inspect or advance the practice code counter",
}

var counterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the code the next report would receive, without allocating it",
	RunE:  runCounter(false),
}

var counterNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Allocate and print one practice code",
	RunE:  runCounter(true),
}

func init() {
	counterCmd.AddCommand(counterShowCmd)
	counterCmd.AddCommand(counterNextCmd)
}

func runCounter(allocate bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		mgr, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		cfg := mgr.Get()
		setup, err := practicecode.SetupFromConfig(cmd.Context(), cfg.PracticeCode, cfg.App.Location(), logger)
		if err != nil {
			return err
		}
		defer setup.Close()

		var code practicecode.Code
		if allocate {
			code, err = setup.Allocator.Next(cmd.Context())
		} else {
			code, err = setup.Allocator.Peek(cmd.Context())
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t(store: %s)\n", code, setup.Kind)
		return nil
	}
}
