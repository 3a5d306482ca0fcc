// ABOUTME: List-tasks command for showing cataloged task specs
// ABOUTME: Helps users discover what reusable task specs are available

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/catalog"
)

// listTasksCmd represents the list-tasks command
var listTasksCmd = &cobra.Command{
	Use:   "list-tasks",
	Short: "Show cataloged task specs",
	Long: `Scan the configured --task-dir roots and display every reusable task
spec found, grouped by kind (http, transform, inline).

Examples:
  weft list-tasks
  weft list-tasks --task-dir ./shared-tasks`,
	RunE: listTasks,
}

func listTasks(cmd *cobra.Command, args []string) error {
	cat := catalog.New(afero.NewOsFs(), nil, taskDirs)
	specs, err := cat.ListTaskSpecs()
	if err != nil {
		return fmt.Errorf("failed to scan task specs: %w", err)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	fmt.Println("✨ Cataloged Task Specs")
	fmt.Println()

	if len(specs) == 0 {
		fmt.Println("(none found)")
		return nil
	}

	byKind := make(map[string][]string)
	for _, s := range specs {
		label := s.Name
		if s.Namespace != "" {
			label = s.Namespace + "/" + s.Name
		}
		byKind[string(s.Kind)] = append(byKind[string(s.Kind)], label)
	}

	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		fmt.Printf("%s:\n", kind)
		names := byKind[kind]
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println()
	}

	fmt.Printf("Total: %d task specs across %s\n", len(specs), taskDirsDescription())
	return nil
}

func taskDirsDescription() string {
	if len(taskDirs) == 1 {
		return taskDirs[0]
	}
	return fmt.Sprintf("%d directories", len(taskDirs))
}

func init() {
	rootCmd.AddCommand(listTasksCmd)
}
