// ABOUTME: Shared helpers for building the catalog/engine from global CLI flags
// ABOUTME: and for rendering a WorkflowExecutionResult to the terminal

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/weftrun/weft/internal/catalog"
	"github.com/weftrun/weft/internal/engine"
	"github.com/weftrun/weft/internal/variables"
	"github.com/weftrun/weft/pkg/types"
)

// buildEngine wires an engine.Engine over a catalog scanning the configured
// --workflow-dir/--task-dir roots, mirroring the teacher's
// orchestrator.New(config) single-call wiring.
func buildEngine() (*engine.Engine, error) {
	cat := catalog.New(afero.NewOsFs(), workflowDirs, taskDirs)
	return engine.New(cat, engine.Config{Logger: GetLogger()})
}

// parseVars parses "key=value" command-line variables into a workflow input
// map, the engine's replacement for the teacher's flat env-var-list binding.
func parseVars(vars []string) (map[string]interface{}, error) {
	input := make(map[string]interface{}, len(vars))
	for _, v := range vars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", v)
		}
		input[parts[0]] = parts[1]
	}
	return input, nil
}

// loadVarFiles loads and merges one or more YAML/JSON/.env variable files
// (--var-file, --env-file) into a workflow input map, resolving any "@file"
// references within them.
func loadVarFiles(paths []string) (map[string]interface{}, error) {
	loader := variables.New("")
	merged, err := loader.LoadVariableFiles(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load variable file: %w", err)
	}
	return loader.ResolveVariableReferences(merged)
}

// displayResultJSON writes result as indented JSON to stdout.
func displayResultJSON(result *types.WorkflowExecutionResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// displayResultText writes a human-readable summary of result to stdout.
func displayResultText(result *types.WorkflowExecutionResult) {
	statusIcon := "✅"
	if !result.Success {
		statusIcon = "❌"
	}

	fmt.Printf("\n%s Workflow completed in %dms\n", statusIcon, result.TotalDurationMs)
	fmt.Printf("   Tasks: %d\n", len(result.TaskResults))

	if len(result.TaskResults) > 0 {
		ids := make([]string, 0, len(result.TaskResults))
		for id := range result.TaskResults {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Printf("\nTasks:\n")
		for _, id := range ids {
			tr := result.TaskResults[id]
			icon := "✅"
			switch tr.Status {
			case types.TaskFailed:
				icon = "❌"
			case types.TaskSkipped:
				icon = "⏭️"
			}
			fmt.Printf("  %s %s - %s (%dms)\n", icon, id, tr.Status, tr.Duration.Milliseconds())
			if verboseMode {
				for _, e := range tr.Errors {
					fmt.Printf("    %s: %s\n", e.Kind, e.Message)
				}
				if tr.SkipReason != "" {
					fmt.Printf("    skip reason: %s\n", tr.SkipReason)
				}
			}
		}
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s: %s\n", e.Kind, e.Message)
		}
	}

	if len(result.Output) > 0 {
		fmt.Printf("\nOutput:\n")
		keys := make([]string, 0, len(result.Output))
		for k := range result.Output {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %v\n", k, result.Output[k])
		}
	}
}

// displayPlanText writes a human-readable execution plan (dry-run) to stdout.
func displayPlanText(result *types.WorkflowExecutionResult) {
	fmt.Printf("🔍 DRY RUN — no tasks executed\n\n")
	fmt.Printf("Graph build: %dms\n\n", result.GraphBuildDurationMs)

	if len(result.ParallelGroups) == 0 {
		fmt.Println("(no tasks)")
		return
	}

	fmt.Printf("Execution plan (%d parallel groups):\n", len(result.ParallelGroups))
	for i, group := range result.ParallelGroups {
		fmt.Printf("  level %d: %s\n", i, strings.Join(group, ", "))
	}
}
