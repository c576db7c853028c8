package presence

import (
	"context"
	"time"

	"eventflex_back_end_go/apperrors"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Tracker records which participants have at least one live session.
type Tracker interface {
	Online(ctx context.Context, participantID, sessionID string) error
	Offline(ctx context.Context, participantID, sessionID string) error
	IsOnline(ctx context.Context, participantID string) (bool, error)
}

func key(participantID string) string {
	return "presence:" + participantID
}

// RedisTracker keeps a set of session ids per participant so presence is
// shared between processes. The set expires unless refreshed within ttl.
// Calls go through a circuit breaker so an unreachable Redis fails fast.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	cb     *gobreaker.CircuitBreaker
}

func NewRedisTracker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisTracker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "presence",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &RedisTracker{client: client, ttl: ttl, cb: cb}
}

func (t *RedisTracker) Online(ctx context.Context, participantID, sessionID string) error {
	_, err := t.cb.Execute(func() (interface{}, error) {
		pipe := t.client.TxPipeline()
		pipe.SAdd(ctx, key(participantID), sessionID)
		pipe.Expire(ctx, key(participantID), t.ttl)
		return pipe.Exec(ctx)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "recording presence", err)
	}
	return nil
}

func (t *RedisTracker) Offline(ctx context.Context, participantID, sessionID string) error {
	_, err := t.cb.Execute(func() (interface{}, error) {
		return nil, t.client.SRem(ctx, key(participantID), sessionID).Err()
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "clearing presence", err)
	}
	return nil
}

func (t *RedisTracker) IsOnline(ctx context.Context, participantID string) (bool, error) {
	n, err := t.cb.Execute(func() (interface{}, error) {
		return t.client.SCard(ctx, key(participantID)).Result()
	})
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindTransient, "reading presence", err)
	}
	return n.(int64) > 0, nil
}

// SessionCounter is satisfied by *relay.Hub.
type SessionCounter interface {
	SessionCount(participantID string) int
}

// LocalTracker answers from the relay of this process only.
type LocalTracker struct {
	sessions SessionCounter
}

func NewLocalTracker(sessions SessionCounter) *LocalTracker {
	return &LocalTracker{sessions: sessions}
}

func (t *LocalTracker) Online(context.Context, string, string) error  { return nil }
func (t *LocalTracker) Offline(context.Context, string, string) error { return nil }

func (t *LocalTracker) IsOnline(_ context.Context, participantID string) (bool, error) {
	return t.sessions.SessionCount(participantID) > 0, nil
}
