// ABOUTME: Graph builder compiling a workflow definition into a validated execution DAG
// ABOUTME: Detects duplicate/missing ids, cycles (DFS recursion stack), and computes lexicographic parallel groups

package graph

import (
	"sort"

	"github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// color tracks DFS visitation state for cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // on the current recursion stack
	black              // fully processed
)

// Build compiles a workflow definition into a validated ExecutionGraph,
// grounded in the teacher's internal/workflow/resolver/resolver.go (DFS cycle
// detection, Kahn's-algorithm-style leveling), generalized to the spec's
// explicit+implicit dependency model (§4.2).
func Build(wf *types.WorkflowDefinition) (*types.ExecutionGraph, *types.GraphBuildDiagnostics, error) {
	diag := &types.GraphBuildDiagnostics{}

	seen := make(map[string]bool, len(wf.Tasks))
	byID := make(map[string]*types.TaskStep, len(wf.Tasks))
	for i := range wf.Tasks {
		step := &wf.Tasks[i]
		if seen[step.ID] {
			return nil, diag, types.NewConfigurationError("duplicate task id: " + step.ID)
		}
		seen[step.ID] = true
		byID[step.ID] = step
	}

	deps := make(map[string]map[string]struct{}, len(wf.Tasks))
	for id := range byID {
		deps[id] = map[string]struct{}{}
	}

	addEdge := func(from, to string, explicit bool, source string) error {
		if _, ok := byID[to]; !ok {
			return types.NewConfigurationError("task " + from + " depends on unknown task " + to)
		}
		if _, exists := deps[from][to]; !exists {
			deps[from][to] = struct{}{}
			diag.Edges = append(diag.Edges, types.DependencyEdge{From: from, To: to, Explicit: explicit, Source: source})
		}
		return nil
	}

	for _, step := range wf.Tasks {
		for _, dep := range step.DependsOn {
			if err := addEdge(step.ID, dep, true, "dependsOn"); err != nil {
				return nil, diag, err
			}
		}
	}

	for _, step := range wf.Tasks {
		for field, tmpl := range templatedFields(&step) {
			ids, err := template.ReferencedTaskIDs(tmpl)
			if err != nil {
				return nil, diag, types.NewConfigurationError("task " + step.ID + " field " + field + ": " + err.Error())
			}
			for _, ref := range ids {
				if ref == step.ID {
					continue
				}
				if err := addEdge(step.ID, ref, false, field); err != nil {
					return nil, diag, err
				}
			}
		}
	}

	if cycle := findCycle(byID, deps); cycle != nil {
		return nil, diag, types.NewCircularDependencyError(cycle)
	}

	nodeIDs := make([]string, 0, len(byID))
	for id := range byID {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	levels, groups := computeLevels(nodeIDs, deps)

	dependents := make(map[string][]string, len(byID))
	for id, ds := range deps {
		for dep := range ds {
			dependents[dep] = append(dependents[dep], id)
		}
	}
	for id := range dependents {
		sort.Strings(dependents[id])
	}

	depsOut := make(map[string][]string, len(deps))
	for id, ds := range deps {
		list := make([]string, 0, len(ds))
		for d := range ds {
			list = append(list, d)
		}
		sort.Strings(list)
		depsOut[id] = list
	}

	return &types.ExecutionGraph{
		NodeIDs:        nodeIDs,
		Dependencies:   depsOut,
		Dependents:     dependents,
		Levels:         levels,
		ParallelGroups: groups,
	}, diag, nil
}

// templatedFields returns every string field on a task step that can contain
// a `{{...}}` template and therefore an implicit dependency (§4.2 step 3).
func templatedFields(step *types.TaskStep) map[string]string {
	fields := make(map[string]string, len(step.Input)+4)
	for k, v := range step.Input {
		fields["input."+k] = v
	}
	if step.Condition != "" {
		fields["condition"] = step.Condition
	}
	if step.Switch != nil {
		fields["switch.value"] = step.Switch.Value
	}
	if step.ForEach != nil {
		fields["forEach.items"] = step.ForEach.Items
	}
	if step.Cache != nil {
		if step.Cache.KeyTemplate != "" {
			fields["cache.key"] = step.Cache.KeyTemplate
		}
		if step.Cache.BypassWhen != "" {
			fields["cache.bypassWhen"] = step.Cache.BypassWhen
		}
	}
	return fields
}

// findCycle runs a DFS with a recursion-stack coloring; on revisiting a gray
// node it returns the cycle path in traversal order (§4.2 step 4).
func findCycle(byID map[string]*types.TaskStep, deps map[string]map[string]struct{}) []string {
	colors := make(map[string]color, len(byID))
	var path []string

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = gray
		path = append(path, id)

		depList := make([]string, 0, len(deps[id]))
		for d := range deps[id] {
			depList = append(depList, d)
		}
		sort.Strings(depList)

		for _, dep := range depList {
			switch colors[dep] {
			case white:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			case gray:
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cyc := append(append([]string{}, path[start:]...), dep)
				return cyc
			}
		}

		path = path[:len(path)-1]
		colors[id] = black
		return nil
	}

	for _, id := range ids {
		if colors[id] == white {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// computeLevels assigns level(v) = 1 + max(level(dep)) over deps, root level
// 0, via Kahn's-algorithm-style repeated peeling of zero-remaining-dependency
// nodes (§4.2 step 5). Within a level, ids are lexicographic.
func computeLevels(nodeIDs []string, deps map[string]map[string]struct{}) (map[string]int, [][]string) {
	levels := make(map[string]int, len(nodeIDs))
	var groups [][]string
	assigned := make(map[string]bool, len(nodeIDs))

	for len(assigned) < len(nodeIDs) {
		var frontier []string
		for _, id := range nodeIDs {
			if assigned[id] {
				continue
			}
			ready := true
			maxDepLevel := -1
			for dep := range deps[id] {
				if !assigned[dep] {
					ready = false
					break
				}
				if levels[dep] > maxDepLevel {
					maxDepLevel = levels[dep]
				}
			}
			if ready {
				frontier = append(frontier, id)
				levels[id] = maxDepLevel + 1
			}
		}
		sort.Strings(frontier)
		for _, id := range frontier {
			assigned[id] = true
		}
		groups = append(groups, frontier)
	}

	return levels, groups
}
