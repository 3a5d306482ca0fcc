// ABOUTME: Validate command for checking workflow syntax and dependencies
// ABOUTME: Provides workflow validation without execution

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/catalog"
	"github.com/weftrun/weft/internal/engine"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [workflow.yaml]",
	Short: "Validate workflow syntax and dependencies",
	Long: `Validate a workflow file for YAML syntax errors and dependency graph
problems (cycles, dangling references) without executing any task.

Examples:
  weft validate workflow.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: validateWorkflow,
}

func validateWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]
	logger := GetLogger()

	logger.Info().Str("workflow", workflowPath).Msg("Validating workflow")

	wf, err := catalog.LoadWorkflowFile(nil, workflowPath)
	if err != nil {
		fmt.Printf("❌ Parse error: %s\n", err)
		return fmt.Errorf("validation failed")
	}

	e, err := buildEngine()
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	result, err := e.ExecuteDefinition(context.Background(), wf, nil, engine.Options{DryRun: true})
	if err != nil {
		fmt.Printf("❌ Validation error: %s\n", err)
		return fmt.Errorf("validation failed")
	}
	if !result.Success {
		fmt.Printf("❌ Validation errors:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s: %s\n", e.Kind, e.Message)
		}
		return fmt.Errorf("validation failed")
	}

	fmt.Printf("✅ Workflow validation passed\n")
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
