package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type appLoader func() (*App, error)

func newBlueprintCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blueprint",
		Short: "Manage blueprints",
	}
	cmd.AddCommand(newBlueprintCreateCmd(load))
	cmd.AddCommand(newBlueprintApproveCmd(load))
	cmd.AddCommand(newBlueprintStartCmd(load))
	return cmd
}

func newBlueprintCreateCmd(load appLoader) *cobra.Command {
	var (
		description string
		modules     []string
		process     string
		steps       []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Author a draft blueprint with one module per --module and one business process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			bp, err := app.CreateBlueprint(args[0], description)
			if err != nil {
				return err
			}
			for _, m := range modules {
				if err := app.AddModule(bp, m, m, nil, nil); err != nil {
					return fmt.Errorf("add module %s: %w", m, err)
				}
			}
			if process != "" {
				if err := app.AddProcess(bp, process, steps); err != nil {
					return fmt.Errorf("add process %s: %w", process, err)
				}
			}
			fmt.Printf("blueprint %s created (status=%s)\n", bp.ID, bp.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "blueprint description")
	cmd.Flags().StringSliceVar(&modules, "module", nil, "module name, repeatable")
	cmd.Flags().StringVar(&process, "process", "", "business process name")
	cmd.Flags().StringSliceVar(&steps, "step", nil, "business process step, repeatable")
	return cmd
}

func newBlueprintApproveCmd(load appLoader) *cobra.Command {
	var approver string
	cmd := &cobra.Command{
		Use:   "approve <blueprint-id>",
		Short: "Submit a draft blueprint for review and approve it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			bp, err := app.GetBlueprint(args[0])
			if err != nil {
				return err
			}
			if err := app.SubmitAndApprove(bp, approver); err != nil {
				return err
			}
			fmt.Printf("blueprint %s approved by %s\n", bp.ID, approver)
			return nil
		},
	}
	cmd.Flags().StringVar(&approver, "approver", "cli", "name recorded as the approver")
	return cmd
}

func newBlueprintStartCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "start <blueprint-id>",
		Short: "Alias for run: start (or resume) executing an approved blueprint",
		Args:  cobra.ExactArgs(1),
		RunE:  newRunCmd(load).RunE,
	}
}

func newRunCmd(load appLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <blueprint-id>",
		Short: "Initialize the queen and run until no task is pending or running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			result, err := app.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			stats := result.Tree.Stats
			fmt.Printf("tasks: %d total, %d passed, %d failed, %d pending, %d running (%.1f%%)\n",
				stats.Total, stats.Passed, stats.Failed, stats.Pending, stats.Running, stats.ProgressPct)
			if !result.Finished {
				fmt.Println("run interrupted before every task reached a terminal status")
			}
			return nil
		},
	}
	return cmd
}

func newTimelineCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <blueprint-id>",
		Short: "Print the checkpoint timeline for a blueprint's task tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			treeManager, err := app.LoadTreeManager(args[0])
			if err != nil {
				return err
			}
			fmt.Print(treeManager.GenerateTimelineAscii())
			return nil
		},
	}
}

func newRollbackCmd(load appLoader) *cobra.Command {
	var (
		blueprintID string
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "rollback <checkpoint-id>",
		Short: "Restore the task tree (or one task's subtree) to a prior checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if blueprintID == "" {
				return fmt.Errorf("--blueprint is required")
			}
			app, err := load()
			if err != nil {
				return err
			}
			treeManager, err := app.LoadTreeManager(blueprintID)
			if err != nil {
				return err
			}
			checkpointID := args[0]
			impact, err := treeManager.PreviewRollback(checkpointID)
			if err != nil {
				return err
			}
			fmt.Printf("rolling back to %s: %d task(s) impacted, %d artifact(s) would be lost\n",
				checkpointID, len(impact.ImpactedTasks), len(impact.LostArtifacts))
			if len(impact.ImpactedTasks) > 0 {
				fmt.Println("  impacted:", strings.Join(impact.ImpactedTasks, ", "))
			}
			if dryRun {
				return nil
			}
			if err := treeManager.Rollback(checkpointID); err != nil {
				return err
			}
			return app.SaveTreeManager(treeManager)
		},
	}
	cmd.Flags().StringVar(&blueprintID, "blueprint", "", "blueprint id whose task tree should be rolled back")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview the rollback's impact without applying it")
	return cmd
}
