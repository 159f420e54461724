package blueprint

import (
	"fmt"

	"github.com/c360studio/taskqueen/model"
)

// Validate checks a Blueprint for structural errors and advisory warnings.
// Cyclic module dependencies are a warning, not an error: mutual sharing
// between modules is sometimes legitimate (spec §4.1).
func Validate(bp *model.Blueprint) *model.ValidationResult {
	result := &model.ValidationResult{Valid: true}

	if bp.Name == "" {
		result.Errors = append(result.Errors, "blueprint name is required")
	}
	if bp.Description == "" {
		result.Errors = append(result.Errors, "blueprint description is required")
	}
	if len(bp.BusinessProcesses) == 0 {
		result.Errors = append(result.Errors, "at least one business process is required")
	}
	for _, p := range bp.BusinessProcesses {
		if len(p.Steps) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("business process %s has no steps", p.Name))
		}
	}
	if len(bp.Modules) == 0 {
		result.Errors = append(result.Errors, "at least one module is required")
	}

	moduleIDs := make(map[string]bool, len(bp.Modules))
	for _, m := range bp.Modules {
		moduleIDs[m.ID] = true
	}
	for _, m := range bp.Modules {
		for _, dep := range m.Dependencies {
			if !moduleIDs[dep] {
				result.Errors = append(result.Errors, fmt.Sprintf("module %s depends on non-existent module %s", m.Name, dep))
			}
		}
	}

	for _, nfr := range bp.NFRs {
		if nfr.Metric == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("nfr %s has no metric", nfr.Name))
		}
	}

	if cycles := detectModuleCycles(bp.Modules); len(cycles) > 0 {
		for _, cycle := range cycles {
			result.Warnings = append(result.Warnings, fmt.Sprintf("cyclic module dependency: %s", formatCycle(cycle)))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func formatCycle(cycle []string) string {
	out := ""
	for i, id := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

// detectModuleCycles runs an iterative DFS with an explicit stack over the
// module dependency graph and returns every distinct cycle path found.
// Modules are kept in an arena keyed by id (spec §9) so the graph never
// owns node references directly.
func detectModuleCycles(modules []*model.Module) [][]string {
	arena := make(map[string]*model.Module, len(modules))
	for _, m := range modules {
		arena[m.ID] = m
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(modules))
	var cycles [][]string

	type frame struct {
		id      string
		depIdx  int
		pathPos int
	}

	for _, m := range modules {
		if color[m.ID] != white {
			continue
		}
		var path []string
		stack := []frame{{id: m.ID}}
		color[m.ID] = gray
		path = append(path, m.ID)

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node, ok := arena[top.id]
			if !ok || top.depIdx >= len(node.Dependencies) {
				color[top.id] = black
				path = path[:len(path)-1]
				stack = stack[:len(stack)-1]
				continue
			}
			dep := node.Dependencies[top.depIdx]
			top.depIdx++

			if _, exists := arena[dep]; !exists {
				continue // dangling reference is reported separately as an error
			}
			switch color[dep] {
			case white:
				color[dep] = gray
				path = append(path, dep)
				stack = append(stack, frame{id: dep})
			case gray:
				// Found a back edge: extract the cycle from path.
				cycleStart := indexOf(path, dep)
				if cycleStart >= 0 {
					cycle := append([]string(nil), path[cycleStart:]...)
					cycle = append(cycle, dep)
					cycles = append(cycles, cycle)
				}
			case black:
				// Cross edge into an already-finished node: not part of a cycle.
			}
		}
	}
	return cycles
}

func indexOf(s []string, v string) int {
	for i, e := range s {
		if e == v {
			return i
		}
	}
	return -1
}
