package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	rediscommon "clinic-roomsync/common/redis"
	"clinic-roomsync/internal/realtime"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// JournaledEvents 写入事件日志的本地事件
var JournaledEvents = []string{
	realtime.EventConnected,
	realtime.EventDisconnected,
	realtime.EventError,
	realtime.EventMaxReconnectAttempts,
	realtime.EventRoomStatusUpdate,
	realtime.EventRoomAvailabilityUpdate,
	realtime.EventAdmissionUpdate,
	realtime.EventActiveAdmissionsUpdate,
	realtime.EventSubscriptionConfirmed,
	realtime.EventUnsubscriptionConfirmed,
}

// EventSource 本地事件源
type EventSource interface {
	On(event string, handler realtime.Handler) *realtime.Subscription
}

// JournalConfig 事件日志配置
type JournalConfig struct {
	Stream     string
	MaxLen     int64 // stream 近似长度上限，0 不裁剪
	BufferSize int   // 待写入队列长度，满时丢弃新事件
}

// Metrics 监控指标
type Metrics struct {
	mu sync.RWMutex

	EventsReceived  int64     `json:"events_received"`
	EventsPublished int64     `json:"events_published"`
	EventsDropped   int64     `json:"events_dropped"` // 队列已满
	PublishFailures int64     `json:"publish_failures"`
	LastPublishTime time.Time `json:"last_publish_time"`
	StartTime       time.Time `json:"start_time"`
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		EventsReceived:  m.EventsReceived,
		EventsPublished: m.EventsPublished,
		EventsDropped:   m.EventsDropped,
		PublishFailures: m.PublishFailures,
		LastPublishTime: m.LastPublishTime,
		StartTime:       m.StartTime,
	}
}

func (m *Metrics) incr(field *int64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

func (m *Metrics) published() {
	m.mu.Lock()
	m.EventsPublished++
	m.LastPublishTime = time.Now()
	m.mu.Unlock()
}

type journalEntry struct {
	event   string
	payload interface{}
}

// Journal 将实时事件写入 Redis Streams
// 事件在读取 goroutine 上入队，由独立 goroutine 写入，避免 Redis 延迟阻塞帧分发
type Journal struct {
	cfg         JournalConfig
	redisClient *redis.Client
	logger      *zap.Logger
	metrics     *Metrics

	queue chan journalEntry
	subs  []*realtime.Subscription
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewJournal 创建事件日志
func NewJournal(cfg JournalConfig, redisClient *redis.Client, logger *zap.Logger) *Journal {
	if cfg.Stream == "" {
		cfg.Stream = "clinic-roomsync:events"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		cfg:         cfg,
		redisClient: redisClient,
		logger:      logger.With(zap.String("component", "journal")),
		metrics:     &Metrics{StartTime: time.Now()},
		queue:       make(chan journalEntry, cfg.BufferSize),
	}
}

// Stream 事件日志 stream 名称
func (j *Journal) Stream() string {
	return j.cfg.Stream
}

// Metrics 指标快照
func (j *Journal) Metrics() Metrics {
	return j.metrics.GetSnapshot()
}

// Start 订阅事件源并启动写入 goroutine
func (j *Journal) Start(ctx context.Context, source EventSource) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return errors.New("journal already started")
	}
	j.started = true

	ctx, j.cancel = context.WithCancel(ctx)
	for _, event := range JournaledEvents {
		event := event
		j.subs = append(j.subs, source.On(event, func(payload interface{}) {
			j.enqueue(event, payload)
		}))
	}

	j.wg.Add(1)
	go j.run(ctx)

	j.logger.Info("Event journal started",
		zap.String("stream", j.cfg.Stream),
		zap.Int("buffer_size", j.cfg.BufferSize),
	)
	return nil
}

func (j *Journal) enqueue(event string, payload interface{}) {
	j.metrics.incr(&j.metrics.EventsReceived)
	select {
	case j.queue <- journalEntry{event: event, payload: payload}:
	default:
		j.metrics.incr(&j.metrics.EventsDropped)
		j.logger.Warn("Journal queue full, dropping event", zap.String("event", event))
	}
}

func (j *Journal) run(ctx context.Context) {
	defer j.wg.Done()
	for {
		select {
		case <-ctx.Done():
			j.drain()
			return
		case entry := <-j.queue:
			j.publish(entry)
		}
	}
}

// drain 停止前写完已入队的事件
func (j *Journal) drain() {
	for {
		select {
		case entry := <-j.queue:
			j.publish(entry)
		default:
			return
		}
	}
}

// publish 单条写入有独立超时，停止时已出队的事件仍能写完
func (j *Journal) publish(entry journalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	id, err := rediscommon.PublishJSONToStream(ctx, j.redisClient, j.cfg.Stream, j.cfg.MaxLen, entry.event, journalPayload(entry.payload))
	if err != nil {
		j.metrics.incr(&j.metrics.PublishFailures)
		j.logger.Error("Failed to journal event",
			zap.String("event", entry.event),
			zap.Error(err),
		)
		return
	}
	j.metrics.published()
	j.logger.Debug("Journaled event",
		zap.String("event", entry.event),
		zap.String("stream_id", id),
	)
}

// journalPayload error 载荷按消息文本记录
func journalPayload(payload interface{}) interface{} {
	if err, ok := payload.(error); ok {
		return map[string]string{"error": err.Error()}
	}
	return payload
}

// Stop 取消订阅并等待写入 goroutine 退出
func (j *Journal) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return nil
	}
	j.started = false
	subs := j.subs
	j.subs = nil
	cancel := j.cancel
	j.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		j.logger.Info("Event journal stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entry 事件日志中的一条记录
type Entry struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Recent 读取最近 count 条事件（新→旧）
func Recent(ctx context.Context, client *redis.Client, stream string, count int64) ([]Entry, error) {
	msgs, err := rediscommon.ReadRecent(ctx, client, stream, count)
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", stream, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entry := Entry{ID: msg.ID}
		if v, ok := msg.Values["type"].(string); ok {
			entry.Type = v
		}
		if v, ok := msg.Values["data"].(string); ok && json.Valid([]byte(v)) {
			entry.Data = json.RawMessage(v)
		}
		if v, ok := msg.Values["timestamp"].(string); ok {
			var ms int64
			if _, err := fmt.Sscanf(v, "%d", &ms); err == nil {
				entry.Timestamp = time.UnixMilli(ms).UTC()
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
