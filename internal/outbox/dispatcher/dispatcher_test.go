package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/qrpay/internal/config"
	"github.com/smallbiznis/qrpay/internal/outbox/domain"
	"github.com/smallbiznis/qrpay/internal/outbox/repository"
	"github.com/smallbiznis/qrpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type recordingSink struct {
	events []domain.Event
	failOn snowflake.ID
}

func (s *recordingSink) Publish(_ context.Context, event domain.Event) error {
	if event.ID == s.failOn {
		return errors.New("broker unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

type stubLease struct {
	lost     bool
	extended int
	released int
}

func (l *stubLease) Extend(context.Context, time.Duration) (bool, error) {
	l.extended++
	return !l.lost, nil
}

func (l *stubLease) Release(context.Context) error {
	l.released++
	return nil
}

// stubLeases hands out held when free and nothing while taken.
func stubLeases(held *stubLease, taken *bool) acquireFunc {
	return func(context.Context, time.Duration) (lease, error) {
		if *taken {
			return nil, nil
		}
		return held, nil
	}
}

func seed(t *testing.T, db *gorm.DB, repo domain.Repository, ids ...snowflake.ID) {
	t.Helper()
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	for i, id := range ids {
		require.NoError(t, repo.Insert(context.Background(), db, &domain.Event{
			ID:          id,
			EventType:   domain.EventTypePaymentConfirmed,
			AggregateID: id + 1000,
			Payload:     datatypes.JSON(`{"payment_id":"x"}`),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestDispatchOncePublishesInOrderAndMarks(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	seed(t, db, repo, 1, 2, 3)
	sink := &recordingSink{}
	d := newDispatcher(db, zap.NewNop(), repo, sink, config.OutboxConfig{BatchSize: 2})

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sink.events, 2)
	assert.Equal(t, snowflake.ID(1), sink.events[0].ID)

	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := repo.ListUnpublished(context.Background(), db, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDispatchOnceStopsAtFirstFailure(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	seed(t, db, repo, 1, 2, 3)
	d := newDispatcher(db, zap.NewNop(), repo, &recordingSink{failOn: 2}, config.OutboxConfig{})

	n, err := d.DispatchOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	remaining, err := repo.ListUnpublished(context.Background(), db, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, snowflake.ID(2), remaining[0].ID)
}

func TestDispatchOnceSkipsWhenLeaseTaken(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	seed(t, db, repo, 1)
	sink := &recordingSink{}
	d := newDispatcher(db, zap.NewNop(), repo, sink, config.OutboxConfig{})

	held := &stubLease{}
	taken := true
	d.acquire = stubLeases(held, &taken)
	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sink.events)

	taken = false
	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, held.released)
	assert.Zero(t, held.extended)
}

func TestDispatchOnceStopsWhenLeaseLost(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.Provide()
	seed(t, db, repo, 1, 2, 3)
	sink := &recordingSink{}
	d := newDispatcher(db, zap.NewNop(), repo, sink, config.OutboxConfig{LockTTL: time.Minute})

	clock := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		clock = clock.Add(20 * time.Second)
		return clock
	}
	held := &stubLease{lost: true}
	taken := false
	d.acquire = stubLeases(held, &taken)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, held.extended)
	assert.Equal(t, 1, held.released)

	remaining, err := repo.ListUnpublished(context.Background(), db, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestNewDisabledWithoutRedis(t *testing.T) {
	d := New(Params{
		Config: config.Config{Outbox: config.OutboxConfig{Enabled: true}},
		Log:    zap.NewNop(),
	})
	assert.Nil(t, d)
}

func TestStartStop(t *testing.T) {
	db := testutil.NewDB(t)
	d := newDispatcher(db, zap.NewNop(), repository.Provide(), &recordingSink{}, config.OutboxConfig{PollInterval: 10 * time.Millisecond})
	d.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Stop(ctx))
}

func TestStreamSinkAppendsToStream(t *testing.T) {
	client := testutil.NewRedis(t)
	ctx := context.Background()
	stream := "qrpay:test:outbox:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	sink := NewStreamSink(client, stream)
	require.NoError(t, sink.Publish(ctx, domain.Event{
		ID:          9,
		EventType:   domain.EventTypePaymentFailed,
		AggregateID: 10,
		Payload:     datatypes.JSON(`{"reason":"rejected"}`),
	}))

	msgs, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "payment.failed", msgs[0].Values["event_type"])
	assert.Equal(t, "10", msgs[0].Values["aggregate_id"])
	assert.Equal(t, `{"reason":"rejected"}`, msgs[0].Values["payload"])
}
