package main

import (
	"fmt"

	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage batches",
}

var batchCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Register a new, empty batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		id := engine.Batches.CreateBatch(args[0])
		if err := engine.Batches.SaveIndex(); err != nil {
			return fmt.Errorf("batch create: %w", err)
		}
		fmt.Println(id)
		return nil
	},
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known batch and its state",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		for _, b := range engine.Batches.ListBatches() {
			fmt.Printf("%s  %-10s %s\n", b.ID, b.State, b.Name)
		}
		return nil
	},
}

var batchLoadCmd = &cobra.Command{
	Use:   "load ID",
	Short: "Load a batch's asset closure and spawn its entities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := guid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("batch load: %w", err)
		}
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		result := engine.Batches.QueueLoad(id).Get()
		if !result.Success {
			return fmt.Errorf("batch load: %s failed, see op results for detail", id)
		}
		fmt.Printf("batch %s loaded\n", id)
		return nil
	},
}

var batchUnloadCmd = &cobra.Command{
	Use:   "unload ID",
	Short: "Destroy a batch's live entities and release its asset leases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := guid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("batch unload: %w", err)
		}
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()

		result := engine.Batches.QueueUnload(id).Get()
		if !result.Success {
			return fmt.Errorf("batch unload: %s failed, see op results for detail", id)
		}
		fmt.Printf("batch %s unloaded\n", id)
		return nil
	},
}

var batchSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist the batch index to disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer engine.Close()
		return engine.Batches.SaveIndex()
	},
}

func init() {
	batchCmd.AddCommand(batchCreateCmd)
	batchCmd.AddCommand(batchListCmd)
	batchCmd.AddCommand(batchLoadCmd)
	batchCmd.AddCommand(batchUnloadCmd)
	batchCmd.AddCommand(batchSaveCmd)
}
