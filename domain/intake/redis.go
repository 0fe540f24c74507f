package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/apperror"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

// Stream entry fields.
const (
	FieldBody   = "body"
	FieldSource = "source"
)

// RedisConsumer reads a Redis stream through a consumer group. Entries stay
// in the group's pending list until Commit acknowledges and deletes them, so
// a rolled back or crashed batch is delivered again: first to this consumer
// from its own pending list, and after QUEUE_CLAIM_IDLE to any consumer via
// XAUTOCLAIM.
type RedisConsumer struct {
	opts     *redis.Options
	stream   string
	group    string
	consumer string
	source   string
	block    time.Duration
	minIdle  time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	client *redis.Client
	batch  []string
}

// NewRedisConsumer creates a consumer. No connection is made until the
// first Receive.
func NewRedisConsumer(cfg config.QueueConfig, log *slog.Logger) *RedisConsumer {
	name := cfg.Consumer
	if name == "" {
		name, _ = os.Hostname()
	}
	if name == "" {
		name = "intake"
	}
	return &RedisConsumer{
		opts: &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: name,
		source:   cfg.Source,
		block:    cfg.ReceiveTimeout,
		minIdle:  cfg.ClaimIdle,
		log: log.With(logger.Scope("intake.redis"),
			slog.String("stream", cfg.Stream),
			slog.String("consumer", name)),
	}
}

// connect opens the client and makes sure the group exists.
func (r *RedisConsumer) connect(ctx context.Context) (*redis.Client, error) {
	if r.client != nil {
		return r.client, nil
	}

	client := redis.NewClient(r.opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	err := client.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		_ = client.Close()
		return nil, err
	}

	r.log.Info("connected to queue", slog.String("group", r.group))
	r.client = client
	return client, nil
}

// disconnect drops the client after an I/O error; the next Receive
// reconnects.
func (r *RedisConsumer) disconnect(err error) error {
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
	r.log.Warn("queue connection lost", logger.Error(err))
	return apperror.ErrQueue.WithInternal(err)
}

func (r *RedisConsumer) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return r.disconnect(err)
}

func (r *RedisConsumer) Receive(ctx context.Context) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, err := r.connect(ctx)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	// Own pending entries first: these were received earlier and rolled back.
	msg, err := r.readPending(ctx, client)
	if err != nil || msg != nil {
		return msg, err
	}

	claimed, _, err := client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		MinIdle:  r.minIdle,
		Start:    "0-0",
		Count:    1,
		Consumer: r.consumer,
	}).Result()
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	for _, m := range claimed {
		if msg := r.accept(m); msg != nil {
			r.log.Info("claimed idle message", slog.String("message_id", m.ID))
			return msg, nil
		}
	}

	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    1,
		Block:    r.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	for _, s := range streams {
		for _, m := range s.Messages {
			if msg := r.accept(m); msg != nil {
				return msg, nil
			}
		}
	}
	return nil, nil
}

func (r *RedisConsumer) readPending(ctx context.Context, client *redis.Client) (*Message, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, "0"},
		Count:    int64(len(r.batch) + 1),
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	for _, s := range streams {
		for _, m := range s.Messages {
			if r.inBatch(m.ID) {
				continue
			}
			if msg := r.accept(m); msg != nil {
				return msg, nil
			}
		}
	}
	return nil, nil
}

func (r *RedisConsumer) inBatch(id string) bool {
	for _, b := range r.batch {
		if b == id {
			return true
		}
	}
	return false
}

// accept adds m to the batch and converts it. Entries deleted from the
// stream while pending come back without values; they are added to the
// batch so Commit acknowledges them, but not returned.
func (r *RedisConsumer) accept(m redis.XMessage) *Message {
	r.batch = append(r.batch, m.ID)

	body, ok := field(m.Values, FieldBody)
	if !ok {
		r.log.Warn("skipping entry without body", slog.String("message_id", m.ID))
		return nil
	}
	source, _ := field(m.Values, FieldSource)
	if source == "" {
		source = r.source
	}
	return &Message{ID: m.ID, Source: source, Body: []byte(body)}
}

func field(values map[string]any, name string) (string, bool) {
	switch v := values[name].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

// Commit acknowledges and deletes the batch.
func (r *RedisConsumer) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.batch) == 0 {
		return nil
	}
	if r.client == nil {
		return apperror.ErrQueue.WithMessage("commit without connection")
	}

	pipe := r.client.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, r.batch...)
	pipe.XDel(ctx, r.stream, r.batch...)
	if _, err := pipe.Exec(ctx); err != nil {
		return r.fail(ctx, err)
	}
	r.batch = nil
	return nil
}

// Rollback forgets the batch. Its entries remain pending and are read again.
func (r *RedisConsumer) Rollback(context.Context) error {
	r.mu.Lock()
	r.batch = nil
	r.mu.Unlock()
	return nil
}

// Publish adds an entry to the stream. Used by tests and local tooling.
func (r *RedisConsumer) Publish(ctx context.Context, source string, body []byte) (string, error) {
	r.mu.Lock()
	client, err := r.connect(ctx)
	r.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	values := map[string]any{FieldBody: string(body)}
	if source != "" {
		values[FieldSource] = source
	}
	return client.XAdd(ctx, &redis.XAddArgs{Stream: r.stream, Values: values}).Result()
}

func (r *RedisConsumer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
