package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"clinic-roomsync/internal/billing"
	"clinic-roomsync/internal/config"
	"clinic-roomsync/internal/consumer"
	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/realtime"
	"clinic-roomsync/internal/repository"
	"clinic-roomsync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// callLog 跨 fake 记录调用顺序
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) index(call string) int {
	for i, c := range l.list() {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeRealtime struct {
	*realtime.Emitter
	log *callLog

	mu             sync.Mutex
	status         realtime.Status
	pings          int
	boundAtConnect int
}

func newFakeRealtime(log *callLog) *fakeRealtime {
	return &fakeRealtime{Emitter: realtime.NewEmitter(zap.NewNop()), log: log, status: realtime.StatusDisconnected}
}

func (f *fakeRealtime) Connect(ctx context.Context) error {
	f.log.add("connect")
	f.mu.Lock()
	f.status = realtime.StatusConnected
	for _, event := range []string{
		realtime.EventRoomStatusUpdate,
		realtime.EventRoomAvailabilityUpdate,
		realtime.EventAdmissionUpdate,
		realtime.EventActiveAdmissionsUpdate,
	} {
		f.boundAtConnect += f.ListenerCount(event)
	}
	f.mu.Unlock()
	f.Emit(realtime.EventConnected, realtime.ConnectionState{Status: realtime.StatusConnected})
	return nil
}

func (f *fakeRealtime) Disconnect() {
	f.log.add("disconnect")
	f.mu.Lock()
	f.status = realtime.StatusDisconnected
	f.mu.Unlock()
	f.Clear()
}

func (f *fakeRealtime) Ping() error {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
	return nil
}

func (f *fakeRealtime) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeRealtime) SubscribeToRoom(roomID domain.ID) error {
	f.log.add("subscribe:" + roomID.String())
	return nil
}

func (f *fakeRealtime) State() realtime.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return realtime.ConnectionState{Status: f.status}
}

type fakeRoomAPI struct {
	store.RoomAPI
	log   *callLog
	rooms []domain.Room
	err   error
}

func (f *fakeRoomAPI) ListRooms(ctx context.Context, filters domain.RoomFilters) ([]domain.Room, error) {
	f.log.add("list_rooms")
	return f.rooms, f.err
}

func (f *fakeRoomAPI) ListAvailableRooms(ctx context.Context, roomType domain.RoomType) ([]domain.Room, error) {
	f.log.add("list_available_rooms")
	var out []domain.Room
	for _, r := range f.rooms {
		if r.Status == domain.RoomStatusAvailable {
			out = append(out, r)
		}
	}
	return out, f.err
}

type fakeAdmissionAPI struct {
	store.AdmissionAPI
	log        *callLog
	admissions []domain.Admission
	err        error
}

func (f *fakeAdmissionAPI) ListAdmissions(ctx context.Context, filters domain.AdmissionFilters) ([]domain.Admission, error) {
	f.log.add("list_admissions")
	return f.admissions, f.err
}

func (f *fakeAdmissionAPI) ListActiveAdmissions(ctx context.Context) ([]domain.Admission, error) {
	f.log.add("list_active_admissions")
	return f.admissions, f.err
}

type fakeSnapshots struct {
	log   *callLog
	mu    sync.Mutex
	snap  *repository.Snapshot
	saves int
}

func (f *fakeSnapshots) Save(ctx context.Context, snap repository.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.snap = &snap
	return nil
}

func (f *fakeSnapshots) Load(ctx context.Context) (repository.Snapshot, error) {
	f.log.add("snapshot_load")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap == nil {
		return repository.Snapshot{}, repository.ErrSnapshotMiss
	}
	return *f.snap, nil
}

func (f *fakeSnapshots) last() (*repository.Snapshot, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.saves
}

type fakeJournal struct {
	log *callLog
}

func (f *fakeJournal) Start(ctx context.Context, source consumer.EventSource) error {
	f.log.add("journal_start")
	return nil
}

func (f *fakeJournal) Stop(ctx context.Context) error {
	f.log.add("journal_stop")
	return nil
}

func (f *fakeJournal) Metrics() consumer.Metrics { return consumer.Metrics{} }

type harness struct {
	log        *callLog
	rt         *fakeRealtime
	roomAPI    *fakeRoomAPI
	admAPI     *fakeAdmissionAPI
	snapshots  *fakeSnapshots
	rooms      *store.RoomStore
	admissions *store.AdmissionStore
	svc        *SyncService
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()
	log := &callLog{}
	h := &harness{
		log:       log,
		rt:        newFakeRealtime(log),
		roomAPI:   &fakeRoomAPI{log: log},
		admAPI:    &fakeAdmissionAPI{log: log},
		snapshots: &fakeSnapshots{log: log},
	}
	h.rooms = store.NewRoomStore(h.roomAPI, zap.NewNop())
	h.admissions = store.NewAdmissionStore(h.admAPI, billing.NewCalculator(billing.DefaultConfig()), store.AdmissionConfig{}, zap.NewNop(),
		store.WithRoomLookup(h.rooms))

	cfg := config.Defaults()
	cfg.Realtime.PingInterval = 0
	cfg.Sync.SnapshotInterval = 0
	if mutate != nil {
		mutate(cfg)
	}
	h.svc = New(cfg, Deps{
		Rooms:      h.rooms,
		Admissions: h.admissions,
		Realtime:   h.rt,
		Snapshots:  h.snapshots,
		Journal:    &fakeJournal{log: log},
	}, zap.NewNop())
	return h
}

// run 启动服务直到 ready 返回 true，返回停止函数
func (h *harness) run(t *testing.T, ready func() bool) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.svc.Start(ctx) }()

	require.Eventually(t, ready, 2*time.Second, 5*time.Millisecond)
	return func() {
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, h.svc.Stop(ctx))
	}
}

func TestSyncService_StartupOrdering(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Sync.SubscribeRooms = []string{"1", "2"}
	})
	h.roomAPI.rooms = []domain.Room{
		{ID: "1", Status: domain.RoomStatusAvailable, Type: domain.RoomTypeStandard},
		{ID: "2", Status: domain.RoomStatusOccupied, Type: domain.RoomTypeICU},
	}
	h.admAPI.admissions = []domain.Admission{{ID: "7", RoomID: "2", Status: domain.AdmissionStatusActive}}

	stop := h.run(t, func() bool {
		return len(h.admissions.Snapshot().ActiveAdmissions) == 1 &&
			len(h.admissions.Snapshot().Admissions) == 1 &&
			len(h.rooms.Snapshot().Rooms) == 2 &&
			len(h.rooms.Snapshot().AvailableRooms) == 1
	})

	load := h.log.index("snapshot_load")
	journal := h.log.index("journal_start")
	connect := h.log.index("connect")
	require.GreaterOrEqual(t, load, 0)
	assert.Less(t, load, journal)
	assert.Less(t, journal, connect)
	for _, fetch := range []string{"list_rooms", "list_available_rooms", "list_admissions", "list_active_admissions"} {
		assert.Greater(t, h.log.index(fetch), connect, fetch)
	}
	assert.Less(t, connect, h.log.index("subscribe:1"))
	assert.Less(t, h.log.index("subscribe:1"), h.log.index("subscribe:2"))
	assert.Equal(t, 4, h.rt.boundAtConnect)
	assert.Len(t, h.rooms.Snapshot().AvailableRooms, 1)

	stop()

	assert.Greater(t, h.log.index("journal_stop"), connect)
	assert.Greater(t, h.log.index("disconnect"), h.log.index("journal_stop"))
	snap, saves := h.snapshots.last()
	require.Equal(t, 1, saves)
	assert.Len(t, snap.Rooms, 2)
	assert.Len(t, snap.ActiveAdmissions, 1)
	assert.Zero(t, h.rt.ListenerCount(realtime.EventRoomStatusUpdate))
}

func TestSyncService_WarmStartSurvivesFailedSync(t *testing.T) {
	h := newHarness(t, nil)
	h.snapshots.snap = &repository.Snapshot{
		Rooms:      []domain.Room{{ID: "9", Status: domain.RoomStatusOccupied}},
		Admissions: []domain.Admission{{ID: "3", RoomID: "9", Status: domain.AdmissionStatusActive}},
	}
	h.roomAPI.err = &domain.APIError{StatusCode: 503, Detail: "backend down"}
	h.admAPI.err = errors.New("connection refused")

	stop := h.run(t, func() bool {
		return h.log.index("list_active_admissions") >= 0 && h.rooms.Snapshot().Error != "" && !h.admissions.Snapshot().Loading
	})
	defer stop()

	rooms := h.rooms.Snapshot()
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, domain.ID("9"), rooms.Rooms[0].ID)
	assert.Equal(t, "backend down", rooms.Error)

	_, ok := h.admissions.AdmissionByID("3")
	assert.True(t, ok)
}

func TestSyncService_WarmStartDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Sync.WarmStart = false })
	h.snapshots.snap = &repository.Snapshot{Rooms: []domain.Room{{ID: "9"}}}

	stop := h.run(t, func() bool { return h.log.index("list_active_admissions") >= 0 })
	defer stop()

	assert.Equal(t, -1, h.log.index("snapshot_load"))
}

func TestSyncService_KeepalivePingAndSnapshotTicker(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Realtime.PingInterval = 5 * time.Millisecond
		cfg.Sync.SnapshotInterval = 5 * time.Millisecond
	})

	stop := h.run(t, func() bool {
		_, saves := h.snapshots.last()
		return h.rt.Pings() >= 2 && saves >= 2
	})
	stop()
}

func TestSyncService_InitialSyncReturnsFirstError(t *testing.T) {
	h := newHarness(t, nil)
	h.admAPI.err = &domain.APIError{StatusCode: 500, Detail: "boom"}

	err := h.svc.InitialSync(context.Background())
	require.Error(t, err)
	var apiErr *domain.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "sync ")
}

func TestSyncService_HandlerServesStoreState(t *testing.T) {
	h := newHarness(t, nil)
	h.rooms.Restore(store.RoomState{Rooms: []domain.Room{{ID: "4", Status: domain.RoomStatusAvailable}}})

	rec := httptest.NewRecorder()
	h.svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/4", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":2000`)
	assert.Contains(t, rec.Body.String(), `"status":"available"`)
}
