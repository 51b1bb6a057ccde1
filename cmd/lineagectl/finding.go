package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	findingDataset   string
	findingPageSize  int
	findingPageToken string
)

var findingCmd = &cobra.Command{
	Use:   "finding",
	Short: "Inspect findings",
}

var findingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List findings for a dataset version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		records, nextToken, err := s.Registry.ListFindings(findingDataset, findingPageSize, findingPageToken)
		if err != nil {
			return fmt.Errorf("failed to list findings: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(map[string]any{
				"findings":      records,
				"nextPageToken": nextToken,
			})
		}

		headers := []string{"ID", "Engine", "Kind", "Severity", "Confidence", "Created At"}
		rows := make([][]string, 0, len(records))
		for _, f := range records {
			rows = append(rows, []string{
				truncate(f.ID, 20), f.EngineID, f.Kind, f.Severity, f.Confidence,
				f.CreatedAt.Format(time.RFC3339),
			})
		}
		printTable(headers, rows)
		if nextToken != "" {
			fmt.Printf("Next page: --page-token %s\n", nextToken)
		}
		return nil
	},
}

var findingGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a finding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		finding, err := s.Registry.GetFinding(args[0])
		if err != nil {
			return fmt.Errorf("failed to get finding: %w", err)
		}
		if finding == nil {
			return fmt.Errorf("finding %s not found", args[0])
		}
		return printJSON(finding)
	},
}

func init() {
	findingListCmd.Flags().StringVar(&findingDataset, "dataset", "", "Dataset version id (required)")
	findingListCmd.Flags().IntVar(&findingPageSize, "page-size", 20, "Page size")
	findingListCmd.Flags().StringVar(&findingPageToken, "page-token", "", "Page token from a previous listing")
	_ = findingListCmd.MarkFlagRequired("dataset")

	findingCmd.AddCommand(findingListCmd)
	findingCmd.AddCommand(findingGetCmd)
}
