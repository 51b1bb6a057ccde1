package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage dataset versions",
}

var datasetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a new dataset version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		dv, err := s.Registry.CreateDatasetVersion()
		if err != nil {
			return fmt.Errorf("failed to create dataset version: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(dv)
		}
		fmt.Println(dv.ID)
		return nil
	},
}

var datasetGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a dataset version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		dv, err := s.Registry.GetDatasetVersion(args[0])
		if err != nil {
			return fmt.Errorf("failed to get dataset version: %w", err)
		}
		if dv == nil {
			return fmt.Errorf("dataset version %s not found", args[0])
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(dv)
		}
		printTable(
			[]string{"ID", "Created At"},
			[][]string{{dv.ID, dv.CreatedAt.Format(time.RFC3339)}},
		)
		return nil
	},
}

func init() {
	datasetCmd.AddCommand(datasetCreateCmd)
	datasetCmd.AddCommand(datasetGetCmd)
}
