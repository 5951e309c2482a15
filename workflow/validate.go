package workflow

import "fmt"

// MalformedDefinitionError names the offending field of a workflow
// document that failed validation. It is fatal: no run is started.
type MalformedDefinitionError struct {
	Field  string
	Reason string
}

func (e *MalformedDefinitionError) Error() string {
	return fmt.Sprintf("malformed definition: %s: %s", e.Field, e.Reason)
}

func malformed(field, format string, args ...any) *MalformedDefinitionError {
	return &MalformedDefinitionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate enforces the construction invariants of a definition:
// known trigger events, non-empty branch patterns, unique job names,
// non-empty step lists, exactly one action per step, dependencies that
// reference existing jobs, and an acyclic dependency graph.
func (d *Definition) Validate() error {
	for i, rule := range d.On {
		if !rule.Event.Valid() {
			return malformed(fmt.Sprintf("on[%d].event", i), "unknown event kind %q", rule.Event)
		}
		for _, branch := range rule.Branches {
			if branch == "" {
				return malformed(fmt.Sprintf("on[%d].branches", i), "branch patterns must be non-empty")
			}
		}
	}

	seen := make(map[string]struct{}, len(d.Jobs))
	for _, job := range d.Jobs {
		if _, dup := seen[job.Name]; dup {
			return malformed("jobs", "duplicate job name %q", job.Name)
		}
		seen[job.Name] = struct{}{}
	}

	for _, job := range d.Jobs {
		if err := d.validateJob(job, seen); err != nil {
			return err
		}
	}

	return d.validateAcyclic()
}

func (d *Definition) validateJob(job Job, jobs map[string]struct{}) error {
	field := fmt.Sprintf("jobs.%s", job.Name)

	if len(job.Steps) == 0 {
		return malformed(field+".steps", "job declares no steps")
	}

	for _, dep := range job.Needs {
		if _, ok := jobs[dep]; !ok {
			return malformed(field+".needs", "undefined job %q", dep)
		}
	}

	for i, step := range job.Steps {
		if step.Kind() == StepKindInvalid {
			return malformed(
				fmt.Sprintf("%s.steps[%d]", field, i),
				"step must declare exactly one of checkout, toolchain-install or run",
			)
		}
	}

	return nil
}

// validateAcyclic runs Kahn's algorithm over job indices; any job left
// unprocessed sits on a cycle.
func (d *Definition) validateAcyclic() error {
	index := make(map[string]int, len(d.Jobs))
	for i, job := range d.Jobs {
		index[job.Name] = i
	}

	indegree := make([]int, len(d.Jobs))
	dependents := make([][]int, len(d.Jobs))
	for i, job := range d.Jobs {
		for _, dep := range job.Needs {
			di := index[dep]
			indegree[i]++
			dependents[di] = append(dependents[di], i)
		}
	}

	var ready []int
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}

	processed := 0
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		processed++

		for _, dep := range dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if processed != len(d.Jobs) {
		for i, deg := range indegree {
			if deg > 0 {
				return malformed(
					fmt.Sprintf("jobs.%s.needs", d.Jobs[i].Name),
					"dependency cycle detected",
				)
			}
		}
	}

	return nil
}
