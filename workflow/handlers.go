package workflow

import (
	"context"
	"fmt"
	"sync"
)

// ExecContext is passed to every pluggable handler. It gives handlers
// access to the engine's collaborators (store, broker) without
// Task itself carrying behavior, keeping Task serializable (spec §8.7,
// round-trip persistence).
type ExecContext struct {
	Engine   *Engine
	Instance *Instance
	Task     *Task
}

// ExecutorFunc implements an ExecutorTask's (or KafkaCommandTask's)
// execute body. It returns the task's final status; returning a non-nil
// error is equivalent to FAILURE (ErrExecuteFailure, §7).
type ExecutorFunc func(ctx context.Context, ec *ExecContext) (Status, error)

// DecisionFunc implements a DecisionTask's evaluate. It returns the id of
// the chosen successor, which must be present in Task.NextDAGs.
type DecisionFunc func(ctx context.Context, ec *ExecContext) (string, error)

// IntervalFunc implements IntervalTask.interval_execute. A true return
// finalizes the interval; false reschedules (subject to
// TimeToForceComplete).
type IntervalFunc func(ctx context.Context, ec *ExecContext) (bool, error)

// ListenerFunc implements a SensorTask/KafkaListenerTask's on_message. A
// true return means the sensor is now fully satisfied.
type ListenerFunc func(ctx context.Context, ec *ExecContext, ev Event) (bool, error)

// KeyExtractor implements get_correlatable_keys_from_payload for a given
// inbound stream: it returns the candidate (attr, value) pairs an event's
// payload yields for correlation lookup.
type KeyExtractor func(ev Event) ([]CorrelationKey, error)

// Named registries for every pluggable behavior, mirroring the
// checkpointStores / GetCheckpointStore / RegisterCheckpointStore pattern:
// a package-level map guarded by a mutex, with Get/Register functions.
// Handlers are resolved by name at dispatch time rather than embedded on
// Task so that Task stays pure data.
var (
	executorsMu sync.RWMutex
	executors   = map[string]ExecutorFunc{}

	decisionsMu sync.RWMutex
	decisions   = map[string]DecisionFunc{}

	intervalsMu sync.RWMutex
	intervals   = map[string]IntervalFunc{}

	listenersMu sync.RWMutex
	listeners   = map[string]ListenerFunc{}

	extractorsMu sync.RWMutex
	extractors   = map[string]KeyExtractor{}
)

func RegisterExecutor(name string, fn ExecutorFunc) {
	executorsMu.Lock()
	defer executorsMu.Unlock()
	executors[name] = fn
}

func GetExecutor(name string) (ExecutorFunc, error) {
	executorsMu.RLock()
	defer executorsMu.RUnlock()
	fn, ok := executors[name]
	if !ok {
		return nil, fmt.Errorf("%w: executor handler %q", ErrMissingTask, name)
	}
	return fn, nil
}

func RegisterDecision(name string, fn DecisionFunc) {
	decisionsMu.Lock()
	defer decisionsMu.Unlock()
	decisions[name] = fn
}

func GetDecision(name string) (DecisionFunc, error) {
	decisionsMu.RLock()
	defer decisionsMu.RUnlock()
	fn, ok := decisions[name]
	if !ok {
		return nil, fmt.Errorf("%w: decision handler %q", ErrMissingTask, name)
	}
	return fn, nil
}

func RegisterInterval(name string, fn IntervalFunc) {
	intervalsMu.Lock()
	defer intervalsMu.Unlock()
	intervals[name] = fn
}

func GetInterval(name string) (IntervalFunc, error) {
	intervalsMu.RLock()
	defer intervalsMu.RUnlock()
	fn, ok := intervals[name]
	if !ok {
		return nil, fmt.Errorf("%w: interval handler %q", ErrMissingTask, name)
	}
	return fn, nil
}

func RegisterListener(name string, fn ListenerFunc) {
	listenersMu.Lock()
	defer listenersMu.Unlock()
	listeners[name] = fn
}

func GetListener(name string) (ListenerFunc, error) {
	listenersMu.RLock()
	defer listenersMu.RUnlock()
	fn, ok := listeners[name]
	if !ok {
		return nil, fmt.Errorf("%w: listener handler %q", ErrMissingTask, name)
	}
	return fn, nil
}

// RegisterKeyExtractor binds a KeyExtractor to an inbound stream name.
func RegisterKeyExtractor(stream string, fn KeyExtractor) {
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	extractors[stream] = fn
}

func GetKeyExtractor(stream string) (KeyExtractor, error) {
	extractorsMu.RLock()
	defer extractorsMu.RUnlock()
	fn, ok := extractors[stream]
	if !ok {
		return nil, fmt.Errorf("%w: no key extractor registered for stream %q", ErrMissingTask, stream)
	}
	return fn, nil
}
