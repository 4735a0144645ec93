package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tailored-agentic-units/flow/workflow"
)

const (
	redisKeyPrefix   = "flow:"
	redisTriggersKey = redisKeyPrefix + "triggers"
	redisMonitorsKey = redisKeyPrefix + "monitors"
)

// RedisStore is a Redis-backed workflow.Store: workflow instances as JSON
// blobs keyed by root id, correlation buckets as Redis sets, and the
// trigger index as a sorted set scored by trigger time. Grounded on
// jordigilh-kubernaut's direct dependency on redis/go-redis/v9 for its
// own cache layer: a typed wrapper around *redis.Client, context-scoped
// calls, and encoding/json marshaling of domain records into Redis
// values.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured *redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func instanceKey(workflowID string) string {
	return redisKeyPrefix + "instance:" + workflowID
}

func correlationKey(key workflow.CorrelationKey) string {
	return redisKeyPrefix + "corr:" + key.Attr + "\x00" + key.Value + "\x00" + key.Stream
}

func memberOf(workflowID, taskID string) string {
	return workflowID + "\x00" + taskID
}

func splitMember(member string) (workflowID, taskID string) {
	parts := strings.SplitN(member, "\x00", 2)
	if len(parts) != 2 {
		return member, ""
	}
	return parts[0], parts[1]
}

// UpdateInstance upserts the instance's JSON blob inside a WATCH
// transaction, using Instance.UpdateCount as an optimistic-lock guard: a
// write carrying a lower update_count than what is already stored loses.
func (s *RedisStore) UpdateInstance(ctx context.Context, inst *workflow.Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal instance %s: %w", inst.RootID, err)
	}

	key := instanceKey(inst.RootID)
	txf := func(tx *redis.Tx) error {
		existing, getErr := tx.Get(ctx, key).Bytes()
		if getErr != nil && getErr != redis.Nil {
			return getErr
		}
		if getErr == nil {
			var stored workflow.Instance
			if jsonErr := json.Unmarshal(existing, &stored); jsonErr == nil && stored.UpdateCount > inst.UpdateCount {
				return fmt.Errorf("stale write: instance %s has update_count %d, write carries %d", inst.RootID, stored.UpdateCount, inst.UpdateCount)
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		return fmt.Errorf("update instance %s: %w", inst.RootID, err)
	}
	return nil
}

// RemoveRootInstance deletes the instance blob and sweeps every other
// index a root workflow can appear in — correlation sets, the trigger
// sorted set, and the monitor hash — so a DeleteOnComplete cleanup
// doesn't leave stale rows behind, matching MemoryStore.RemoveRootInstance.
func (s *RedisStore) RemoveRootInstance(ctx context.Context, rootID string) error {
	if err := s.client.Del(ctx, instanceKey(rootID)).Err(); err != nil {
		return fmt.Errorf("remove instance %s: %w", rootID, err)
	}

	if err := s.sweepTriggers(ctx, rootID); err != nil {
		return fmt.Errorf("sweep triggers for %s: %w", rootID, err)
	}
	if err := s.sweepMonitors(ctx, rootID); err != nil {
		return fmt.Errorf("sweep monitors for %s: %w", rootID, err)
	}
	if err := s.sweepCorrelations(ctx, rootID); err != nil {
		return fmt.Errorf("sweep correlations for %s: %w", rootID, err)
	}
	return nil
}

func (s *RedisStore) sweepTriggers(ctx context.Context, rootID string) error {
	members, err := s.client.ZRange(ctx, redisTriggersKey, 0, -1).Result()
	if err != nil {
		return err
	}
	prefix := rootID + "\x00"
	stale := make([]interface{}, 0)
	for _, member := range members {
		if strings.HasPrefix(member, prefix) {
			stale = append(stale, member)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return s.client.ZRem(ctx, redisTriggersKey, stale...).Err()
}

func (s *RedisStore) sweepMonitors(ctx context.Context, rootID string) error {
	fields, err := s.client.HGetAll(ctx, redisMonitorsKey).Result()
	if err != nil {
		return err
	}
	prefix := rootID + "\x00"
	stale := make([]string, 0)
	for field := range fields {
		if strings.HasPrefix(field, prefix) {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return s.client.HDel(ctx, redisMonitorsKey, stale...).Err()
}

// sweepCorrelations scans every correlation set key and removes any
// member belonging to rootID. Correlation keys are addressed by
// attr/value/stream rather than workflow id, so there is no direct
// lookup from rootID to the set(s) it may be a member of; SCAN is the
// same fan-out Redis itself recommends over KEYS for production use.
func (s *RedisStore) sweepCorrelations(ctx context.Context, rootID string) error {
	prefix := rootID + "\x00"
	pattern := redisKeyPrefix + "corr:*"
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		members, err := s.client.SMembers(ctx, key).Result()
		if err != nil {
			return err
		}
		stale := make([]interface{}, 0)
		for _, member := range members {
			if strings.HasPrefix(member, prefix) {
				stale = append(stale, member)
			}
		}
		if len(stale) == 0 {
			continue
		}
		if err := s.client.SRem(ctx, key, stale...).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) GetInstance(ctx context.Context, workflowID string) (*workflow.Instance, error) {
	data, err := s.client.Get(ctx, instanceKey(workflowID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var inst workflow.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("unmarshal instance %s: %w", workflowID, err)
	}
	return &inst, nil
}

func (s *RedisStore) StoreTrigger(ctx context.Context, rec workflow.TriggerRecord) error {
	score := float64(rec.TriggerTime.UnixNano())
	return s.client.ZAdd(ctx, redisTriggersKey, redis.Z{
		Score:  score,
		Member: memberOf(rec.WorkflowID, rec.TaskID),
	}).Err()
}

func (s *RedisStore) RemoveTrigger(ctx context.Context, workflowID, taskID string) error {
	return s.client.ZRem(ctx, redisTriggersKey, memberOf(workflowID, taskID)).Err()
}

func (s *RedisStore) DueTriggers(ctx context.Context, now time.Time) ([]workflow.TriggerRecord, error) {
	results, err := s.client.ZRangeByScoreWithScores(ctx, redisTriggersKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixNano(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	recs := make([]workflow.TriggerRecord, 0, len(results))
	for _, z := range results {
		member, _ := z.Member.(string)
		workflowID, taskID := splitMember(member)
		recs = append(recs, workflow.TriggerRecord{
			WorkflowID:  workflowID,
			TaskID:      taskID,
			TriggerTime: time.Unix(0, int64(z.Score)),
		})
	}
	return recs, nil
}

func (s *RedisStore) UpdateCorrelationKey(ctx context.Context, workflowID, taskID string, oldKey, newKey workflow.CorrelationKey) error {
	member := memberOf(workflowID, taskID)
	pipe := s.client.TxPipeline()
	if oldKey != (workflow.CorrelationKey{}) {
		pipe.SRem(ctx, correlationKey(oldKey), member)
	}
	pipe.SAdd(ctx, correlationKey(newKey), member)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) RemoveFromCorrelation(ctx context.Context, workflowID, taskID string, key workflow.CorrelationKey) error {
	return s.client.SRem(ctx, correlationKey(key), memberOf(workflowID, taskID)).Err()
}

func (s *RedisStore) LookupCorrelation(ctx context.Context, key workflow.CorrelationKey) ([]workflow.CorrelationMatch, error) {
	members, err := s.client.SMembers(ctx, correlationKey(key)).Result()
	if err != nil {
		return nil, err
	}
	matches := make([]workflow.CorrelationMatch, 0, len(members))
	for _, member := range members {
		workflowID, taskID := splitMember(member)
		matches = append(matches, workflow.CorrelationMatch{WorkflowID: workflowID, TaskID: taskID})
	}
	return matches, nil
}

func (s *RedisStore) GetMonitoringTask(ctx context.Context, workflowID, taskID string) (string, bool, error) {
	monitorID, err := s.client.HGet(ctx, redisMonitorsKey, memberOf(workflowID, taskID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return monitorID, true, nil
}

// RegisterMonitor records the companion monitoring task id for a
// monitored task; see MemoryStore.RegisterMonitor for why this sits
// outside the workflow.Store interface.
func (s *RedisStore) RegisterMonitor(ctx context.Context, workflowID, monitoredTaskID, monitorTaskID string) error {
	return s.client.HSet(ctx, redisMonitorsKey, memberOf(workflowID, monitoredTaskID), monitorTaskID).Err()
}

var _ workflow.Store = (*RedisStore)(nil)
