// Package plan orders pipeline steps. Every step belongs to a stage; stages
// run in rank order and explicit After edges order steps within and across
// earlier stages.
package plan

import (
	"context"
	"fmt"
	"strings"
)

// Stage is a pipeline phase.
type Stage string

const (
	Schema     Stage = "schema"
	Staging    Stage = "staging"
	Dimension  Stage = "dimension"
	Fact       Stage = "fact"
	Validation Stage = "validation"
)

var ranks = map[Stage]int{
	Schema:     0,
	Staging:    1,
	Dimension:  2,
	Fact:       3,
	Validation: 4,
}

// Rank returns the position of s, or -1 for unknown stages.
func (s Stage) Rank() int {
	r, ok := ranks[s]
	if !ok {
		return -1
	}
	return r
}

// Outcome is what a step reports back.
type Outcome struct {
	Rows    int64
	Removed int64
}

// Step is one unit of work.
type Step struct {
	Name  string
	Stage Stage
	// Table is the table the step writes, if any.
	Table string
	// After names steps that must finish first.
	After []string
	Run   func(ctx context.Context) (Outcome, error)
}

// Plan is an unordered set of steps.
type Plan struct {
	steps []Step
}

// New returns a plan over steps.
func New(steps ...Step) *Plan {
	return &Plan{steps: append([]Step(nil), steps...)}
}

// Add appends steps.
func (p *Plan) Add(steps ...Step) { p.steps = append(p.steps, steps...) }

// Len is the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Only returns the steps belonging to stages, keeping After edges that point
// into the kept set.
func (p *Plan) Only(stages ...Stage) *Plan {
	keep := make(map[Stage]bool, len(stages))
	for _, s := range stages {
		keep[s] = true
	}
	kept := make(map[string]bool)
	var out []Step
	for _, s := range p.steps {
		if keep[s.Stage] {
			out = append(out, s)
			kept[s.Name] = true
		}
	}
	for i, s := range out {
		var after []string
		for _, a := range s.After {
			if kept[a] {
				after = append(after, a)
			}
		}
		out[i].After = after
	}
	return &Plan{steps: out}
}

// Order returns the steps sorted by stage rank, then dependencies, then
// insertion order. It fails on duplicate names, unknown stages, unknown
// dependencies, dependencies on a later stage and cycles.
func (p *Plan) Order() ([]Step, error) {
	index := make(map[string]int, len(p.steps))
	for i, s := range p.steps {
		if s.Name == "" {
			return nil, fmt.Errorf("plan: step %d has no name", i)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("plan: step %q declared twice", s.Name)
		}
		if s.Stage.Rank() < 0 {
			return nil, fmt.Errorf("plan: step %q has unknown stage %q", s.Name, s.Stage)
		}
		index[s.Name] = i
	}

	indegree := make([]int, len(p.steps))
	dependents := make([][]int, len(p.steps))
	for i, s := range p.steps {
		for _, dep := range s.After {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("plan: step %q runs after unknown step %q", s.Name, dep)
			}
			if p.steps[j].Stage.Rank() > s.Stage.Rank() {
				return nil, fmt.Errorf("plan: step %q (%s) cannot run after %q (%s)", s.Name, s.Stage, dep, p.steps[j].Stage)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	out := make([]Step, 0, len(p.steps))
	done := make([]bool, len(p.steps))
	for len(out) < len(p.steps) {
		// Pick the ready step of the lowest stage, earliest declared.
		next := -1
		for i, s := range p.steps {
			if done[i] || indegree[i] > 0 {
				continue
			}
			if next < 0 || s.Stage.Rank() < p.steps[next].Stage.Rank() {
				next = i
			}
		}
		if next < 0 {
			var stuck []string
			for i, s := range p.steps {
				if !done[i] {
					stuck = append(stuck, s.Name)
				}
			}
			return nil, fmt.Errorf("plan: dependency cycle among %s", strings.Join(stuck, ", "))
		}
		// A ready step may still wait on an unfinished earlier stage.
		if blocked := p.earlierPending(next, done); blocked >= 0 {
			return nil, fmt.Errorf("plan: dependency cycle involving %q", p.steps[blocked].Name)
		}
		done[next] = true
		out = append(out, p.steps[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return out, nil
}

// earlierPending returns a step of a lower stage than i that is not done.
// With the lowest-rank-first choice above this only happens when that step
// is stuck in a cycle.
func (p *Plan) earlierPending(i int, done []bool) int {
	r := p.steps[i].Stage.Rank()
	for j, s := range p.steps {
		if !done[j] && j != i && s.Stage.Rank() < r {
			return j
		}
	}
	return -1
}
