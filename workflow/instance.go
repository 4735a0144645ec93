package workflow

import "sort"

// SensorCorrelation records the attribute/value pair a sensor task is
// currently registered under in the correlation index, so the engine can
// detect when the runtime-parameter blackboard's value changes underneath
// it and re-register.
type SensorCorrelation struct {
	Attr  string
	Value string
}

// Instance is a workflow instance: a ROOT task plus the tasks map, the
// shared runtime-parameter blackboard, and the sensor-correlation map. It
// corresponds to spec §3's "workflow instance" / ITemplateDAGInstance.
//
// Instance is not safe for concurrent mutation; the Engine's dispatch pool
// guarantees at most one goroutine operates on a given instance at a time
// (see dispatch_pool.go).
type Instance struct {
	RootID            string
	Tasks             map[string]*Task
	RuntimeParameters map[string]any
	SensorCorrelation map[string]SensorCorrelation
	UpdateCount       int64

	// DeleteOnComplete mirrors the store's delete-on-complete policy
	// (spec §3 lifecycle: "removed only when the containing workflow
	// instance is removed").
	DeleteOnComplete bool
}

// NewInstance creates an empty Instance rooted at rootID. Tasks are added
// via AddTask (normally by the out-of-scope template instantiator, or by
// builder.go's constructors in tests).
func NewInstance(rootID string) *Instance {
	return &Instance{
		RootID:            rootID,
		Tasks:             make(map[string]*Task),
		RuntimeParameters: make(map[string]any),
		SensorCorrelation: make(map[string]SensorCorrelation),
	}
}

// AddTask registers a task in the instance's task map.
func (i *Instance) AddTask(t *Task) {
	i.Tasks[t.ID] = t
}

// Root returns the instance's root task.
func (i *Instance) Root() *Task {
	return i.Tasks[i.RootID]
}

// AllTerminal reports whether every task in the instance has reached a
// terminal status (spec §3 invariant 4: eligible for deletion).
func (i *Instance) AllTerminal() bool {
	for _, t := range i.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// sortedTaskIDs returns task ids in sorted order, used anywhere iteration
// order over the tasks map must be deterministic (root cleanup).
func (i *Instance) sortedTaskIDs() []string {
	ids := make([]string, 0, len(i.Tasks))
	for id := range i.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
