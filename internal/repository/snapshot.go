package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinic-roomsync/internal/domain"

	"go.uber.org/zap"
)

// snapshotFormat 快照格式版本，不一致时视为未命中
const snapshotFormat = 1

// Snapshot 两个 store 的集合快照，用于重启后预热
// 只保存集合本身，不保存 loading/error/选中项
type Snapshot struct {
	Format           int                `json:"format"`
	SavedAt          time.Time          `json:"saved_at"`
	Rooms            []domain.Room      `json:"rooms"`
	AvailableRooms   []domain.Room      `json:"available_rooms"`
	RoomFilters      domain.RoomFilters `json:"room_filters"`
	Admissions       []domain.Admission `json:"admissions"`
	ActiveAdmissions []domain.Admission `json:"active_admissions"`
}

// SnapshotRepository 快照读写（Redis）
type SnapshotRepository struct {
	kv     KVStore
	key    string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewSnapshotRepository 创建快照仓库
// ttl 为 0 时快照不过期
func NewSnapshotRepository(kv KVStore, keyPrefix string, ttl time.Duration, logger *zap.Logger) *SnapshotRepository {
	if keyPrefix == "" {
		keyPrefix = "clinic-roomsync"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotRepository{
		kv:     kv,
		key:    keyPrefix + ":snapshot",
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Key 快照使用的 Redis key
func (r *SnapshotRepository) Key() string {
	return r.key
}

// Save 写入快照
func (r *SnapshotRepository) Save(ctx context.Context, snap Snapshot) error {
	snap.Format = snapshotFormat
	if snap.SavedAt.IsZero() {
		snap.SavedAt = r.now().UTC()
	}

	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, string(jsonData), r.ttl); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	r.logger.Debug("Saved store snapshot",
		zap.String("key", r.key),
		zap.Int("rooms", len(snap.Rooms)),
		zap.Int("admissions", len(snap.Admissions)),
	)
	return nil
}

// Load 读取快照；不存在、格式不符或损坏时返回 ErrSnapshotMiss
func (r *SnapshotRepository) Load(ctx context.Context) (Snapshot, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, ErrSnapshotMiss) {
			return Snapshot{}, ErrSnapshotMiss
		}
		return Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		r.logger.Warn("Discarding unreadable snapshot", zap.String("key", r.key), zap.Error(err))
		return Snapshot{}, ErrSnapshotMiss
	}
	if snap.Format != snapshotFormat {
		r.logger.Warn("Discarding snapshot with unexpected format",
			zap.String("key", r.key),
			zap.Int("format", snap.Format),
		)
		return Snapshot{}, ErrSnapshotMiss
	}
	return snap, nil
}

// Clear 删除快照
func (r *SnapshotRepository) Clear(ctx context.Context) error {
	if err := r.kv.Del(ctx, r.key); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}
