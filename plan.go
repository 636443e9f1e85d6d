package forge

import (
	"sort"
)

// Plan is the ordered task list resolved from a Pipeline for a set of
// requested names.
//
// A Plan captures the tasks and pipeline hooks at build time; registering
// more tasks on the Pipeline afterwards does not change it.
type Plan struct {
	tasks     []*Task
	stages    [][]string
	unmatched []string
	hooks     PipelineHooks
}

// Stage is a dependency level: every task in it depends only on tasks in
// earlier stages.
type Stage struct {
	Tasks []string
	Index int
}

// Tasks returns the tasks in execution order.
func (p *Plan) Tasks() []*Task {
	return append([]*Task(nil), p.tasks...)
}

// Names returns the task names in execution order.
func (p *Plan) Names() []string {
	out := make([]string, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t.Name)
	}
	return out
}

// Specs returns task snapshots in execution order.
func (p *Plan) Specs() []TaskSpec {
	out := make([]TaskSpec, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t.Spec())
	}
	return out
}

// Unmatched returns requested names that are not registered.
func (p *Plan) Unmatched() []string {
	return append([]string(nil), p.unmatched...)
}

// Stages returns the dependency levels. Names within a stage are in
// execution order.
func (p *Plan) Stages() []Stage {
	out := make([]Stage, 0, len(p.stages))
	for i, layer := range p.stages {
		out = append(out, Stage{Index: i, Tasks: append([]string(nil), layer...)})
	}
	return out
}

// Len returns the number of tasks in the plan.
func (p *Plan) Len() int {
	return len(p.tasks)
}

// resolve computes the dependency closure of names over registry and orders
// it. order gives each registered name its registration index, which breaks
// ties between independent tasks.
func resolve(registry map[string]*Task, order map[string]int, names []string) (*Plan, error) {
	p := &Plan{}

	// Breadth-first closure. Unknown requested names are reported; unknown
	// dependency names are dropped.
	var closure []string
	seen := make(map[string]bool)
	missing := make(map[string]bool)
	for _, name := range names {
		if _, ok := registry[name]; !ok {
			if !missing[name] {
				missing[name] = true
				p.unmatched = append(p.unmatched, name)
			}
			continue
		}
		if !seen[name] {
			seen[name] = true
			closure = append(closure, name)
		}
	}
	for i := 0; i < len(closure); i++ {
		for _, dep := range registry[closure[i]].Deps {
			if _, ok := registry[dep]; ok && !seen[dep] {
				seen[dep] = true
				closure = append(closure, dep)
			}
		}
	}
	if len(closure) == 0 {
		return p, nil
	}

	// Edges run from a dependency to its dependents.
	indegree := make(map[string]int, len(closure))
	dependents := make(map[string][]string, len(closure))
	for _, name := range closure {
		deps := make(map[string]bool)
		for _, dep := range registry[name].Deps {
			if !seen[dep] || deps[dep] {
				continue
			}
			deps[dep] = true
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	topo, stages, err := topoSortDeterministic(closure, indegree, dependents, order)
	if err != nil {
		return nil, err
	}

	p.tasks = make([]*Task, 0, len(topo))
	for _, name := range topo {
		p.tasks = append(p.tasks, registry[name])
	}
	p.stages = stages
	return p, nil
}

// topoSortDeterministic runs Kahn's algorithm level by level, ordering each
// level by registration index.
func topoSortDeterministic(
	nodes []string,
	indegree map[string]int,
	adj map[string][]string,
	order map[string]int,
) ([]string, [][]string, error) {
	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sortByRegistration(queue, order)

	var topo []string
	var stages [][]string
	for len(queue) > 0 {
		stage := append([]string(nil), queue...)
		stages = append(stages, stage)

		var next []string
		for _, u := range stage {
			topo = append(topo, u)
			for _, v := range adj[u] {
				indegree[v]--
				if indegree[v] == 0 {
					next = append(next, v)
				}
			}
		}
		sortByRegistration(next, order)
		queue = next
	}

	if len(topo) != len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if indegree[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		sortByRegistration(stuck, order)
		return nil, nil, &CycleError{Tasks: stuck}
	}
	return topo, stages, nil
}

func sortByRegistration(names []string, order map[string]int) {
	sort.SliceStable(names, func(i, j int) bool {
		return order[names[i]] < order[names[j]]
	})
}
