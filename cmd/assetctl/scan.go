package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the configured asset tree and print a catalog summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		defer engine.Close()

		data := engine.Index.Current()
		fmt.Printf("scanned %d asset(s)\n", len(data.ByGuid))
		for g, entry := range data.ByGuid {
			fmt.Printf("  %s  %-20s %s\n", g, entry.Meta.TypeName, entry.Meta.Name)
		}
		return nil
	},
}
