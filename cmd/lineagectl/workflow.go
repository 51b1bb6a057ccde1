package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/substratehq/lineage/pkg/audit"
	"github.com/substratehq/lineage/pkg/workflow"
)

var (
	wfDataset     string
	wfSubjectType string
	wfSubjectID   string
	wfActor       string
	wfActorKind   string
	wfRoles       []string
	wfReason      string
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Inspect and drive workflow states",
}

func addSubjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&wfDataset, "dataset", "", "Dataset version id (required)")
	cmd.Flags().StringVar(&wfSubjectType, "subject-type", "", "Subject type: finding, run, or report (required)")
	cmd.Flags().StringVar(&wfSubjectID, "subject-id", "", "Subject id (required)")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("subject-type")
	_ = cmd.MarkFlagRequired("subject-id")
}

var workflowShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the workflow state of a subject",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		state, err := s.Workflow.Get(wfDataset, wfSubjectType, wfSubjectID)
		if err != nil {
			return fmt.Errorf("failed to get workflow state: %w", err)
		}
		if state == nil {
			return fmt.Errorf("subject %s/%s has no workflow state", wfSubjectType, wfSubjectID)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(state)
		}
		printTable(
			[]string{"State", "Created By", "Updated By", "Updated At"},
			[][]string{{state.CurrentState, state.CreatedBy, state.UpdatedBy, state.UpdatedAt.Format(time.RFC3339)}},
		)
		return nil
	},
}

var workflowHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the transition history of a subject",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		state, err := s.Workflow.Get(wfDataset, wfSubjectType, wfSubjectID)
		if err != nil {
			return fmt.Errorf("failed to get workflow state: %w", err)
		}
		if state == nil {
			return fmt.Errorf("subject %s/%s has no workflow state", wfSubjectType, wfSubjectID)
		}
		transitions, err := s.Workflow.ListTransitions(state.ID)
		if err != nil {
			return fmt.Errorf("failed to list transitions: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(transitions)
		}
		headers := []string{"Time", "From", "To", "Actor", "Reason"}
		rows := make([][]string, 0, len(transitions))
		for _, tr := range transitions {
			rows = append(rows, []string{
				tr.CreatedAt.Format(time.RFC3339), tr.FromState, tr.ToState,
				tr.ActorID, truncate(tr.Reason, 50),
			})
		}
		printTable(headers, rows)
		return nil
	},
}

var workflowTransitionCmd = &cobra.Command{
	Use:   "transition <target-state>",
	Short: "Move a subject to a target state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openSubstrate()
		if err != nil {
			return err
		}
		defer s.Close()

		state, err := s.Workflow.Transition(workflow.TransitionRequest{
			DatasetVersionID: wfDataset,
			SubjectType:      wfSubjectType,
			SubjectID:        wfSubjectID,
			Target:           workflow.State(args[0]),
			ActorID:          wfActor,
			ActorKind:        audit.ActorKind(wfActorKind),
			ActorRoles:       wfRoles,
			Reason:           wfReason,
		})
		if err != nil {
			return fmt.Errorf("transition rejected: %w", err)
		}

		if outputFmt == "json" || outputFmt == "yaml" {
			return printOutput(state)
		}
		fmt.Printf("%s/%s is now %s\n", wfSubjectType, wfSubjectID, state.CurrentState)
		return nil
	},
}

func init() {
	addSubjectFlags(workflowShowCmd)
	addSubjectFlags(workflowHistoryCmd)

	addSubjectFlags(workflowTransitionCmd)
	workflowTransitionCmd.Flags().StringVar(&wfActor, "actor", "", "Acting user id (required)")
	workflowTransitionCmd.Flags().StringVar(&wfActorKind, "actor-kind", "", "Actor kind: human, system, or automation (default: human)")
	workflowTransitionCmd.Flags().StringSliceVar(&wfRoles, "role", nil, "Actor role, repeatable")
	workflowTransitionCmd.Flags().StringVar(&wfReason, "reason", "", "Free-text reason recorded with the transition")
	_ = workflowTransitionCmd.MarkFlagRequired("actor")

	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowHistoryCmd)
	workflowCmd.AddCommand(workflowTransitionCmd)
}
