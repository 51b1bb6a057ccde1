package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/substratehq/lineage/pkg/audit"
)

var (
	auditDataset   string
	auditRun       string
	auditArtifact  string
	auditCategory  string
	auditActor     string
	auditOutcome   string
	auditSince     string
	auditUntil     string
	auditPageSize  int
	auditPageToken string
	exportFormat   string
	exportOut      string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and export the audit ledger",
}

// auditFilter builds the ledger filter from the shared flags.
func auditFilter() (audit.Filter, error) {
	f := audit.Filter{
		DatasetVersionID: auditDataset,
		RunID:            auditRun,
		ArtifactID:       auditArtifact,
		Category:         auditCategory,
		ActorID:          auditActor,
		Outcome:          auditOutcome,
	}
	if auditSince != "" {
		t, err := time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return f, fmt.Errorf("invalid --since value: %w", err)
		}
		f.Since = t
	}
	if auditUntil != "" {
		t, err := time.Parse(time.RFC3339, auditUntil)
		if err != nil {
			return f, fmt.Errorf("invalid --until value: %w", err)
		}
		f.Until = t
	}
	return f, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&auditDataset, "dataset", "", "Filter by dataset version id")
	cmd.Flags().StringVar(&auditRun, "run", "", "Filter by run id")
	cmd.Flags().StringVar(&auditArtifact, "artifact", "", "Filter by artifact id")
	cmd.Flags().StringVar(&auditCategory, "category", "", "Filter by category")
	cmd.Flags().StringVar(&auditActor, "actor", "", "Filter by actor id")
	cmd.Flags().StringVar(&auditOutcome, "outcome", "", "Filter by outcome: success, failure, warning")
	cmd.Flags().StringVar(&auditSince, "since", "", "Only entries at or after this RFC3339 time")
	cmd.Flags().StringVar(&auditUntil, "until", "", "Only entries at or before this RFC3339 time")
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter()
		if err != nil {
			return err
		}
		s, cfg, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		pageSize := auditPageSize
		if pageSize == 0 {
			pageSize = cfg.Audit.PageSize
		}
		records, nextToken, total, err := s.Audit.Query(filter, pageSize, auditPageToken)
		if err != nil {
			return fmt.Errorf("failed to query audit entries: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(map[string]any{
				"entries":       records,
				"nextPageToken": nextToken,
				"totalSize":     total,
			})
		}

		headers := []string{"Time", "Actor", "Category", "Label", "Outcome", "Dataset"}
		rows := make([][]string, 0, len(records))
		for _, e := range records {
			rows = append(rows, []string{
				e.CreatedAt.Format(time.RFC3339), e.ActorID, e.Category,
				truncate(e.Label, 40), e.Outcome, truncate(e.DatasetVersionID, 12),
			})
		}
		printTable(headers, rows)
		fmt.Printf("Total: %d\n", total)
		if nextToken != "" {
			fmt.Printf("Next page: --page-token %s\n", nextToken)
		}
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export matching audit entries as CSV or NDJSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter()
		if err != nil {
			return err
		}
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		switch exportFormat {
		case "csv":
			return s.Audit.ExportCSV(out, filter)
		case "ndjson":
			return s.Audit.ExportNDJSON(out, filter)
		default:
			return fmt.Errorf("unsupported export format: %s (use csv or ndjson)", exportFormat)
		}
	},
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count matching audit entries per outcome",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := auditFilter()
		if err != nil {
			return err
		}
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		counts, err := s.Audit.CountByOutcome(filter)
		if err != nil {
			return fmt.Errorf("failed to summarize audit entries: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(counts)
		}
		rows := make([][]string, 0, len(counts))
		for _, outcome := range []string{
			string(audit.OutcomeSuccess),
			string(audit.OutcomeFailure),
			string(audit.OutcomeWarning),
		} {
			if n, ok := counts[outcome]; ok {
				rows = append(rows, []string{outcome, fmt.Sprintf("%d", n)})
			}
		}
		printTable([]string{"Outcome", "Count"}, rows)
		return nil
	},
}

func init() {
	addFilterFlags(auditListCmd)
	auditListCmd.Flags().IntVar(&auditPageSize, "page-size", 0, "Page size (default from config)")
	auditListCmd.Flags().StringVar(&auditPageToken, "page-token", "", "Page token from a previous listing")

	addFilterFlags(auditExportCmd)
	auditExportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Export format: csv or ndjson")
	auditExportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: stdout)")

	addFilterFlags(auditSummaryCmd)

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditSummaryCmd)
}
