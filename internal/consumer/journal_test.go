package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/realtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestJournal_PublishesEventsInOrder(t *testing.T) {
	client := newTestRedis(t)
	emitter := realtime.NewEmitter(zap.NewNop())
	j := NewJournal(JournalConfig{Stream: "test:events"}, client, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, j.Start(ctx, emitter))
	emitter.Emit(realtime.EventRoomStatusUpdate, domain.RoomStatusUpdate{RoomID: "3", Status: domain.RoomStatusOccupied})
	emitter.Emit(realtime.EventAdmissionUpdate, domain.AdmissionUpdate{AdmissionID: "7", Status: domain.AdmissionStatusDischarged})
	emitter.Emit(realtime.EventPong, domain.Pong{Timestamp: 1})

	require.Eventually(t, func() bool {
		return j.Metrics().EventsPublished == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, j.Stop(ctx))

	entries, err := Recent(ctx, client, "test:events", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, realtime.EventAdmissionUpdate, entries[0].Type)
	assert.Equal(t, realtime.EventRoomStatusUpdate, entries[1].Type)
	assert.False(t, entries[1].Timestamp.IsZero())

	var u domain.RoomStatusUpdate
	require.NoError(t, json.Unmarshal(entries[1].Data, &u))
	assert.Equal(t, domain.ID("3"), u.RoomID)
	assert.Equal(t, domain.RoomStatusOccupied, u.Status)
}

func TestJournal_ErrorPayloadRecordedAsMessage(t *testing.T) {
	client := newTestRedis(t)
	emitter := realtime.NewEmitter(zap.NewNop())
	j := NewJournal(JournalConfig{Stream: "test:events"}, client, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, j.Start(ctx, emitter))
	emitter.Emit(realtime.EventError, &domain.TransportError{Op: "connect", Err: errors.New("dial tcp: refused")})
	require.NoError(t, j.Stop(ctx))

	entries, err := Recent(ctx, client, "test:events", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"error":"realtime connect: dial tcp: refused"}`, string(entries[0].Data))
}

func TestJournal_StopUnsubscribes(t *testing.T) {
	client := newTestRedis(t)
	emitter := realtime.NewEmitter(zap.NewNop())
	j := NewJournal(JournalConfig{}, client, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, j.Start(ctx, emitter))
	assert.Error(t, j.Start(ctx, emitter))
	assert.Equal(t, 1, emitter.ListenerCount(realtime.EventAdmissionUpdate))

	require.NoError(t, j.Stop(ctx))
	require.NoError(t, j.Stop(ctx))
	assert.Zero(t, emitter.ListenerCount(realtime.EventAdmissionUpdate))
	assert.Equal(t, "clinic-roomsync:events", j.Stream())
}

func TestJournal_DropsWhenQueueFull(t *testing.T) {
	j := NewJournal(JournalConfig{BufferSize: 1}, nil, zap.NewNop())

	// 未启动写入 goroutine，队列只能容纳一条
	j.enqueue(realtime.EventConnected, nil)
	j.enqueue(realtime.EventConnected, nil)

	m := j.Metrics()
	assert.Equal(t, int64(2), m.EventsReceived)
	assert.Equal(t, int64(1), m.EventsDropped)
}

func TestRecent_EmptyStream(t *testing.T) {
	client := newTestRedis(t)
	entries, err := Recent(context.Background(), client, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
