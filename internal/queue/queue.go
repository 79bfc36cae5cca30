// Package queue layers the pipeline's durable messaging on Redis streams.
// Five append-only streams connect the stages; a single consumer group named
// synthesis_workers owns each stream's cursor. Auxiliary keys carry session
// metrics, cached verification results and the prompt-template success index.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"seedforge/internal/logging"
)

// Stream names. Producers append, the synthesis_workers group consumes.
const (
	StreamCorpus       = "corpus-queue"
	StreamAtomic       = "atomic-tasks"
	StreamExtended     = "extended-tasks"
	StreamVerification = "verification-queue"
	StreamResults      = "verification-results"
)

// ConsumerGroup is the single group shared by all pipeline workers.
const ConsumerGroup = "synthesis_workers"

// AllStreams lists every pipeline stream in dependency order.
var AllStreams = []string{
	StreamCorpus,
	StreamAtomic,
	StreamExtended,
	StreamVerification,
	StreamResults,
}

const (
	sessionMetricsTTL      = 30 * 24 * time.Hour
	verificationResultTTL  = 7 * 24 * time.Hour
	defaultConsumeBlockDur = 5 * time.Second
)

// Message is one consumed stream entry.
type Message struct {
	ID     string
	Record map[string]string
}

// Manager is the durable queue layer. All operations are individually atomic;
// batches pipeline for throughput, not transactionality.
type Manager struct {
	rdb    redis.UniversalClient
	logger logging.Logger
}

// NewManager connects to the stream broker at url (redis:// form).
func NewManager(url string) (*Manager, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewManagerWithClient(redis.NewClient(opts)), nil
}

// NewManagerWithClient wraps an existing client, used by tests.
func NewManagerWithClient(rdb redis.UniversalClient) *Manager {
	return &Manager{rdb: rdb, logger: logging.NewComponentLogger("queue")}
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	return m.rdb.Close()
}

// EnsureGroup creates the consumer group on stream, starting from the
// beginning so records published before group creation are still delivered.
// Creation is idempotent: an already-existing group is not an error.
func (m *Manager) EnsureGroup(ctx context.Context, stream string) error {
	err := m.rdb.XGroupCreateMkStream(ctx, stream, ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group on %s: %w", stream, err)
	}
	return nil
}

// EnsureAllGroups creates the consumer group on every pipeline stream.
func (m *Manager) EnsureAllGroups(ctx context.Context) error {
	for _, stream := range AllStreams {
		if err := m.EnsureGroup(ctx, stream); err != nil {
			return err
		}
	}
	return nil
}

// Publish appends one record to stream and returns the assigned id.
func (m *Manager) Publish(ctx context.Context, stream string, record map[string]string) (string, error) {
	id, err := m.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: toValues(record),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", stream, err)
	}
	return id, nil
}

// PublishBatch appends records via a pipeline and returns the assigned ids in
// input order.
func (m *Manager) PublishBatch(ctx context.Context, stream string, records []map[string]string) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	pipe := m.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(records))
	for i, record := range records {
		cmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: toValues(record)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("publish batch to %s: %w", stream, err)
	}
	ids := make([]string, len(cmds))
	for i, cmd := range cmds {
		ids[i] = cmd.Val()
	}
	return ids, nil
}

// Consume reads up to maxCount undelivered records for consumer, blocking up
// to block (default 5 s when zero). A drained stream returns an empty slice,
// not an error.
func (m *Manager) Consume(ctx context.Context, stream, consumer string, maxCount int64, block time.Duration) ([]Message, error) {
	if block <= 0 {
		block = defaultConsumeBlockDur
	}
	res, err := m.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    maxCount,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume from %s: %w", stream, err)
	}

	var messages []Message
	for _, streamRes := range res {
		for _, entry := range streamRes.Messages {
			messages = append(messages, Message{ID: entry.ID, Record: fromValues(entry.Values)})
		}
	}
	return messages, nil
}

// Ack acknowledges delivered records. Double-ack is a no-op.
func (m *Manager) Ack(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.rdb.XAck(ctx, stream, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("ack on %s: %w", stream, err)
	}
	return nil
}

// PendingCount returns the number of delivered-but-unacked records on stream.
func (m *Manager) PendingCount(ctx context.Context, stream string) (int64, error) {
	pending, err := m.rdb.XPending(ctx, stream, ConsumerGroup).Result()
	if err != nil {
		return 0, fmt.Errorf("pending on %s: %w", stream, err)
	}
	return pending.Count, nil
}

// Len returns the total number of records in stream, acknowledged or not.
// The adaptive controller uses it to size verification batches.
func (m *Manager) Len(ctx context.Context, stream string) (int64, error) {
	n, err := m.rdb.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("len of %s: %w", stream, err)
	}
	return n, nil
}

func toValues(record map[string]string) map[string]any {
	values := make(map[string]any, len(record))
	for k, v := range record {
		values[k] = v
	}
	return values
}

func fromValues(values map[string]any) map[string]string {
	record := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			record[k] = s
		} else {
			record[k] = fmt.Sprint(v)
		}
	}
	return record
}
