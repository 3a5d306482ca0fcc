// ABOUTME: Run command for executing workflows
// ABOUTME: Implements the primary workflow execution functionality

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/catalog"
	"github.com/weftrun/weft/internal/engine"
)

var (
	runVariables []string
	runVarFiles  []string
	runEnvFile   string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [workflow.yaml]",
	Short: "Execute a workflow",
	Long: `Execute a workflow from a YAML file. The workflow is parsed, compiled
into a dependency graph, and driven to completion by the scheduler.

Examples:
  weft run workflow.yaml
  weft run workflow.yaml --var who=world
  weft run workflow.yaml --env-file .env.prod`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]

	wf, err := catalog.LoadWorkflowFile(nil, workflowPath)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	fileVars := append([]string{}, runVarFiles...)
	if runEnvFile != "" {
		fileVars = append(fileVars, runEnvFile)
	}
	input, err := loadVarFiles(fileVars)
	if err != nil {
		return err
	}

	overrides, err := parseVars(runVariables)
	if err != nil {
		return err
	}
	for k, v := range overrides {
		input[k] = v
	}

	e, err := buildEngine()
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	result, err := e.ExecuteDefinition(context.Background(), wf, input, engine.Options{})
	if err != nil {
		return fmt.Errorf("failed to execute workflow: %w", err)
	}

	if format == "json" {
		if err := displayResultJSON(result); err != nil {
			return err
		}
	} else {
		displayResultText(result)
	}

	if !result.Success {
		os.Exit(1)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runVariables, "var", []string{}, "set workflow input variables (key=value), overrides --var-file")
	runCmd.Flags().StringSliceVar(&runVarFiles, "var-file", []string{}, "load workflow input variables from a YAML, JSON, or .env file")
	runCmd.Flags().StringVar(&runEnvFile, "env-file", "", "load key=value input variables from a file (alias for --var-file)")
}
