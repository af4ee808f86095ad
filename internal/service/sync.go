package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	rediscommon "clinic-roomsync/common/redis"
	"clinic-roomsync/internal/api"
	"clinic-roomsync/internal/billing"
	"clinic-roomsync/internal/config"
	"clinic-roomsync/internal/consumer"
	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/httpapi"
	"clinic-roomsync/internal/realtime"
	"clinic-roomsync/internal/repository"
	"clinic-roomsync/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RealtimeClient 实时通道
type RealtimeClient interface {
	store.RoomEvents
	store.AdmissionEvents
	consumer.EventSource
	OnConnectionEvent(event string, fn func(realtime.ConnectionState)) *realtime.Subscription
	Connect(ctx context.Context) error
	Disconnect()
	Ping() error
	SubscribeToRoom(roomID domain.ID) error
	State() realtime.ConnectionState
}

// SnapshotStore 快照读写
type SnapshotStore interface {
	Save(ctx context.Context, snap repository.Snapshot) error
	Load(ctx context.Context) (repository.Snapshot, error)
}

// EventJournal 实时事件日志
type EventJournal interface {
	Start(ctx context.Context, source consumer.EventSource) error
	Stop(ctx context.Context) error
	Metrics() consumer.Metrics
}

// Deps 服务依赖；Snapshots、Journal 可为空
type Deps struct {
	Rooms      *store.RoomStore
	Admissions *store.AdmissionStore
	Realtime   RealtimeClient
	Calculator *billing.Calculator
	Snapshots  SnapshotStore
	Journal    EventJournal
}

// SyncService 同步服务：预热、初始同步、实时事件、心跳、快照
type SyncService struct {
	config *config.Config
	logger *zap.Logger
	deps   Deps

	redisClient *redis.Client
	httpServer  *http.Server

	mu      sync.Mutex
	subs    []*realtime.Subscription
	stopped bool
}

// NewSyncService 按配置创建全部依赖
func NewSyncService(cfg *config.Config, logger *zap.Logger) (*SyncService, error) {
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rediscommon.Ping(pingCtx, redisClient, 3); err != nil {
		_ = rediscommon.Close(redisClient)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	apiClient := api.NewClient(cfg.API, logger)
	rt := realtime.NewClient(cfg.Realtime, nil, logger)

	calc := billing.NewCalculator(billing.Config{
		TaxRateBasisPoints:     cfg.Billing.TaxRateBasisPoints,
		FallbackDailyRateCents: cfg.Billing.FallbackDailyRateCents,
	})
	rooms := store.NewRoomStore(apiClient, logger)
	admissions := store.NewAdmissionStore(
		apiClient,
		calc,
		store.AdmissionConfig{
			MaxAdvance:    cfg.Admission.MaxAdvance,
			PastTolerance: cfg.Admission.PastTolerance,
		},
		logger,
		store.WithEligibility(api.NewEligibility(apiClient, cfg.Admission.AuthorizedRoles)),
		store.WithRoomLookup(rooms),
	)

	deps := Deps{
		Rooms:      rooms,
		Admissions: admissions,
		Realtime:   rt,
		Calculator: calc,
		Snapshots: repository.NewSnapshotRepository(
			repository.NewRedisKVStore(redisClient),
			cfg.Sync.SnapshotKeyPrefix,
			cfg.Sync.SnapshotTTL,
			logger,
		),
	}
	if cfg.Journal.Enabled {
		deps.Journal = consumer.NewJournal(consumer.JournalConfig{
			Stream:     cfg.Journal.Stream,
			MaxLen:     cfg.Journal.MaxLen,
			BufferSize: cfg.Journal.BufferSize,
		}, redisClient, logger)
	}

	svc := New(cfg, deps, logger)
	svc.redisClient = redisClient
	svc.httpServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return svc, nil
}

// New 使用给定依赖创建服务
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		config: cfg,
		logger: logger.With(zap.String("component", "sync")),
		deps:   deps,
	}
}

// Handler HTTP 接口
func (s *SyncService) Handler() http.Handler {
	var journal httpapi.JournalStatus
	if s.deps.Journal != nil {
		journal = s.deps.Journal
	}
	return httpapi.NewRouter(httpapi.Deps{
		Rooms:      s.deps.Rooms,
		Admissions: s.deps.Admissions,
		Realtime:   s.deps.Realtime,
		Journal:    journal,
		Calculator: s.deps.Calculator,
	}, s.logger)
}

// Start 启动服务，阻塞到 ctx 结束
func (s *SyncService) Start(ctx context.Context) error {
	s.logger.Info("Starting sync service",
		zap.Bool("warm_start", s.config.Sync.WarmStart),
		zap.Duration("snapshot_interval", s.config.Sync.SnapshotInterval),
		zap.Duration("ping_interval", s.config.Realtime.PingInterval),
	)

	if s.config.Sync.WarmStart {
		s.warmStart(ctx)
	}

	// 先绑定事件再建连，保证不丢首个事件
	s.deps.Rooms.Bind(s.deps.Realtime)
	s.deps.Admissions.Bind(s.deps.Realtime)
	s.track(s.deps.Realtime.OnConnectionEvent(realtime.EventConnected, s.onConnected))
	s.track(s.deps.Realtime.OnConnectionEvent(realtime.EventMaxReconnectAttempts, func(state realtime.ConnectionState) {
		s.logger.Error("Realtime channel gave up reconnecting; store state may be stale",
			zap.Int("reconnect_attempt", state.ReconnectAttempt),
		)
	}))

	if s.deps.Journal != nil {
		if err := s.deps.Journal.Start(ctx, s.deps.Realtime); err != nil {
			return fmt.Errorf("failed to start journal: %w", err)
		}
	}

	if err := s.deps.Realtime.Connect(ctx); err != nil {
		// 已进入重连流程
		s.logger.Warn("Initial realtime connect failed", zap.Error(err))
	}

	if err := s.InitialSync(ctx); err != nil {
		s.logger.Error("Initial sync failed, serving previous state", zap.Error(err))
	}

	if s.httpServer != nil {
		go s.serveHTTP()
	}

	return s.loop(ctx)
}

func (s *SyncService) track(sub *realtime.Subscription) {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// onConnected 每次（重新）建连后订阅配置的房间
func (s *SyncService) onConnected(realtime.ConnectionState) {
	for _, id := range s.config.Sync.SubscribeRooms {
		if err := s.deps.Realtime.SubscribeToRoom(domain.ID(id)); err != nil {
			s.logger.Warn("Failed to subscribe to room", zap.String("room_id", id), zap.Error(err))
		}
	}
}

// warmStart 从快照恢复两个 store
func (s *SyncService) warmStart(ctx context.Context) {
	if s.deps.Snapshots == nil {
		return
	}
	snap, err := s.deps.Snapshots.Load(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotMiss) {
			s.logger.Info("No store snapshot available, starting cold")
		} else {
			s.logger.Warn("Failed to load store snapshot", zap.Error(err))
		}
		return
	}

	s.deps.Rooms.Restore(store.RoomState{
		Rooms:          snap.Rooms,
		AvailableRooms: snap.AvailableRooms,
		Filters:        snap.RoomFilters,
	})
	s.deps.Admissions.Restore(store.AdmissionState{
		Admissions:       snap.Admissions,
		ActiveAdmissions: snap.ActiveAdmissions,
	})
	s.logger.Info("Stores warmed from snapshot", zap.Time("saved_at", snap.SavedAt))
}

// InitialSync 并发拉取房间、可用房间、住院记录、在院列表
// 任一失败时其余结果仍然写入各自的 store
func (s *SyncService) InitialSync(ctx context.Context) error {
	timeout := s.config.Sync.InitialSyncTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	filters := s.deps.Rooms.Snapshot().Filters

	var g errgroup.Group
	g.Go(func() error {
		_, err := s.deps.Rooms.FetchRooms(ctx, filters)
		return wrapSync("rooms", err)
	})
	g.Go(func() error {
		_, err := s.deps.Rooms.FetchAvailableRooms(ctx, "")
		return wrapSync("available rooms", err)
	})
	g.Go(func() error {
		_, err := s.deps.Admissions.FetchAdmissions(ctx, domain.AdmissionFilters{})
		return wrapSync("admissions", err)
	})
	g.Go(func() error {
		_, err := s.deps.Admissions.FetchActiveAdmissions(ctx)
		return wrapSync("active admissions", err)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("Initial sync completed",
		zap.Int("rooms", len(s.deps.Rooms.Snapshot().Rooms)),
		zap.Int("active_admissions", len(s.deps.Admissions.Snapshot().ActiveAdmissions)),
	)
	return nil
}

func wrapSync(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sync %s: %w", what, err)
}

// loop 心跳与快照定时任务
func (s *SyncService) loop(ctx context.Context) error {
	var pingC, snapC <-chan time.Time
	if d := s.config.Realtime.PingInterval; d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		pingC = t.C
	}
	if d := s.config.Sync.SnapshotInterval; d > 0 && s.deps.Snapshots != nil {
		t := time.NewTicker(d)
		defer t.Stop()
		snapC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pingC:
			if s.deps.Realtime.State().Status != realtime.StatusConnected {
				continue
			}
			if err := s.deps.Realtime.Ping(); err != nil {
				s.logger.Debug("Keepalive ping failed", zap.Error(err))
			}
		case <-snapC:
			if err := s.SaveSnapshot(ctx); err != nil {
				s.logger.Error("Failed to save store snapshot", zap.Error(err))
			}
		}
	}
}

// SaveSnapshot 保存两个 store 的当前集合
func (s *SyncService) SaveSnapshot(ctx context.Context) error {
	if s.deps.Snapshots == nil {
		return nil
	}
	rooms := s.deps.Rooms.Snapshot()
	admissions := s.deps.Admissions.Snapshot()
	return s.deps.Snapshots.Save(ctx, repository.Snapshot{
		Rooms:            rooms.Rooms,
		AvailableRooms:   rooms.AvailableRooms,
		RoomFilters:      rooms.Filters,
		Admissions:       admissions.Admissions,
		ActiveAdmissions: admissions.ActiveAdmissions,
	})
}

func (s *SyncService) serveHTTP() {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server failed", zap.Error(err))
	}
}

// Stop 停止服务：保存最终快照、停止日志、关闭 store 与实时通道
func (s *SyncService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	s.logger.Info("Stopping sync service")

	// 调用方的 ctx 通常已取消，收尾使用独立超时
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	if err := s.SaveSnapshot(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("final snapshot: %w", err))
	}

	if s.deps.Journal != nil {
		if err := s.deps.Journal.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("journal stop: %w", err))
		}
	}

	s.deps.Rooms.Close()
	s.deps.Admissions.Close()
	s.deps.Realtime.Disconnect()

	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}
