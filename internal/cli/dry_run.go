// ABOUTME: Dry-run command for showing workflow execution plans
// ABOUTME: Allows users to preview what a workflow would do without executing it

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/catalog"
	"github.com/weftrun/weft/internal/engine"
)

// dryRunCmd represents the dry-run command
var dryRunCmd = &cobra.Command{
	Use:   "dry-run [workflow.yaml]",
	Short: "Show execution plan without running tasks",
	Long: `Compile a workflow's dependency graph and show the planned parallel
execution groups without launching any task.

Examples:
  weft dry-run workflow.yaml
  weft dry-run workflow.yaml --format json`,
	Args: cobra.ExactArgs(1),
	RunE: dryRunWorkflow,
}

func dryRunWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]

	wf, err := catalog.LoadWorkflowFile(nil, workflowPath)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	e, err := buildEngine()
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	result, err := e.ExecuteDefinition(context.Background(), wf, nil, engine.Options{DryRun: true})
	if err != nil {
		return fmt.Errorf("failed to plan workflow: %w", err)
	}

	if format == "json" {
		return displayResultJSON(result)
	}
	displayPlanText(result)
	return nil
}

func init() {
	rootCmd.AddCommand(dryRunCmd)
}
