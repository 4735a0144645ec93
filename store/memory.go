// Package store provides workflow.Store implementations: an in-memory
// store for tests and single-process deployments, and a Redis-backed
// store for durable multi-process deployments.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tailored-agentic-units/flow/workflow"
)

type matchKey struct {
	workflowID string
	taskID     string
}

// MemoryStore is an in-memory workflow.Store, grounded on
// orchestrate/state/checkpoint.go's memoryCheckpointStore: a plain map
// guarded by a single sync.RWMutex. Suitable for tests and development;
// state does not survive a process restart.
type MemoryStore struct {
	mu sync.RWMutex

	instances    map[string]*workflow.Instance
	correlations map[workflow.CorrelationKey]map[matchKey]struct{}
	triggers     map[matchKey]workflow.TriggerRecord
	monitors     map[matchKey]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:    make(map[string]*workflow.Instance),
		correlations: make(map[workflow.CorrelationKey]map[matchKey]struct{}),
		triggers:     make(map[matchKey]workflow.TriggerRecord),
		monitors:     make(map[matchKey]string),
	}
}

func (m *MemoryStore) UpdateInstance(_ context.Context, inst *workflow.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.RootID] = inst
	return nil
}

func (m *MemoryStore) RemoveRootInstance(_ context.Context, rootID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, rootID)
	for key, bucket := range m.correlations {
		for mk := range bucket {
			if mk.workflowID == rootID {
				delete(bucket, mk)
			}
		}
		if len(bucket) == 0 {
			delete(m.correlations, key)
		}
	}
	for mk := range m.triggers {
		if mk.workflowID == rootID {
			delete(m.triggers, mk)
		}
	}
	for mk := range m.monitors {
		if mk.workflowID == rootID {
			delete(m.monitors, mk)
		}
	}
	return nil
}

func (m *MemoryStore) GetInstance(_ context.Context, workflowID string) (*workflow.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instances[workflowID], nil
}

func (m *MemoryStore) StoreTrigger(_ context.Context, rec workflow.TriggerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[matchKey{rec.WorkflowID, rec.TaskID}] = rec
	return nil
}

func (m *MemoryStore) RemoveTrigger(_ context.Context, workflowID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.triggers, matchKey{workflowID, taskID})
	return nil
}

func (m *MemoryStore) DueTriggers(_ context.Context, now time.Time) ([]workflow.TriggerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	due := make([]workflow.TriggerRecord, 0, len(m.triggers))
	for _, rec := range m.triggers {
		if !rec.TriggerTime.After(now) {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].TriggerTime.Equal(due[j].TriggerTime) {
			return due[i].TriggerTime.Before(due[j].TriggerTime)
		}
		if due[i].WorkflowID != due[j].WorkflowID {
			return due[i].WorkflowID < due[j].WorkflowID
		}
		return due[i].TaskID < due[j].TaskID
	})
	return due, nil
}

func (m *MemoryStore) UpdateCorrelationKey(_ context.Context, workflowID, taskID string, oldKey, newKey workflow.CorrelationKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk := matchKey{workflowID, taskID}
	if oldKey != (workflow.CorrelationKey{}) {
		if bucket, ok := m.correlations[oldKey]; ok {
			delete(bucket, mk)
			if len(bucket) == 0 {
				delete(m.correlations, oldKey)
			}
		}
	}
	bucket, ok := m.correlations[newKey]
	if !ok {
		bucket = make(map[matchKey]struct{})
		m.correlations[newKey] = bucket
	}
	bucket[mk] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveFromCorrelation(_ context.Context, workflowID, taskID string, key workflow.CorrelationKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok := m.correlations[key]; ok {
		delete(bucket, matchKey{workflowID, taskID})
		if len(bucket) == 0 {
			delete(m.correlations, key)
		}
	}
	return nil
}

func (m *MemoryStore) LookupCorrelation(_ context.Context, key workflow.CorrelationKey) ([]workflow.CorrelationMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.correlations[key]
	matches := make([]workflow.CorrelationMatch, 0, len(bucket))
	for mk := range bucket {
		matches = append(matches, workflow.CorrelationMatch{WorkflowID: mk.workflowID, TaskID: mk.taskID})
	}
	// MemoryStore's iterator happens to be insertion-order-independent
	// (Go map iteration is randomized); we sort for test determinism.
	// This is NOT a promise the Store interface makes (see DESIGN.md's
	// open-question note on match_only_one + allow_skip_to ordering).
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].WorkflowID != matches[j].WorkflowID {
			return matches[i].WorkflowID < matches[j].WorkflowID
		}
		return matches[i].TaskID < matches[j].TaskID
	})
	return matches, nil
}

func (m *MemoryStore) GetMonitoringTask(_ context.Context, workflowID, taskID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.monitors[matchKey{workflowID, taskID}]
	return id, ok, nil
}

// RegisterMonitor records the companion monitoring task id for a
// monitored task. This pairing has no spec §6 read/write pair beyond
// GetMonitoringTask: the spec treats it as already established by the
// out-of-scope template instantiator by the time the core runs, so
// RegisterMonitor is store-specific setup, called once when a workflow
// instance carrying a monitor/monitored pair is built.
func (m *MemoryStore) RegisterMonitor(workflowID, monitoredTaskID, monitorTaskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitors[matchKey{workflowID, monitoredTaskID}] = monitorTaskID
}

var _ workflow.Store = (*MemoryStore)(nil)
