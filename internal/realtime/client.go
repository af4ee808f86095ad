package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"clinic-roomsync/common/config"
	"clinic-roomsync/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotConnected 通道未连接
var ErrNotConnected = errors.New("realtime channel not connected")

// Status 连接状态
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

func (s Status) gaugeValue() float64 {
	switch s {
	case StatusConnecting:
		return 1
	case StatusConnected:
		return 2
	}
	return 0
}

// ConnectionState 连接状态快照
type ConnectionState struct {
	Status           Status `json:"status"`
	ReconnectAttempt int    `json:"reconnect_attempt"`
	SessionID        string `json:"session_id"`
	Reason           string `json:"reason,omitempty"`
}

// outboundFrame 客户端发出的帧
type outboundFrame struct {
	Type      string    `json:"type"`
	RoomID    domain.ID `json:"room_id,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// Option 客户端选项
type Option func(*Client)

// WithScheduler 替换重连定时器
func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.scheduler = s }
}

// WithClock 替换时钟（心跳时间戳）
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client 实时通道客户端
// 进程内只创建一次，以指针注入各 store；只有 Client 自身管理底层连接
type Client struct {
	*Emitter

	cfg       config.RealtimeConfig
	dialer    Dialer
	scheduler Scheduler
	now       func() time.Time
	logger    *zap.Logger
	sessionID string

	mu      sync.Mutex
	status  Status
	attempt int
	conn    Conn
	timer   Timer
	closing bool   // 显式 Disconnect 后为 true，抑制重连
	dialGen uint64 // 每次发起建连或 Disconnect 递增，旧的建连结果作废

	writeMu sync.Mutex
}

// NewClient 创建实时通道客户端
func NewClient(cfg config.RealtimeConfig, dialer Dialer, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if dialer == nil {
		dialer = NewWebSocketDialer(cfg.HandshakeTimeout)
	}
	c := &Client{
		Emitter:   NewEmitter(logger),
		cfg:       cfg,
		dialer:    dialer,
		scheduler: timeScheduler{},
		now:       time.Now,
		logger:    logger.With(zap.String("component", "realtime")),
		sessionID: uuid.NewString(),
		status:    StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	connectionStateGauge.Set(c.status.gaugeValue())
	return c
}

// State 当前连接状态
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked("")
}

func (c *Client) stateLocked(reason string) ConnectionState {
	return ConnectionState{
		Status:           c.status,
		ReconnectAttempt: c.attempt,
		SessionID:        c.sessionID,
		Reason:           reason,
	}
}

func (c *Client) setStatusLocked(s Status) {
	c.status = s
	connectionStateGauge.Set(s.gaugeValue())
}

// Connect 建立连接；已连接或正在连接时直接返回
// 建连失败按意外关闭处理，进入重连流程
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.setStatusLocked(StatusConnecting)
	c.dialGen++
	gen := c.dialGen
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

func (c *Client) dial(ctx context.Context, gen uint64) error {
	header := http.Header{}
	header.Set("X-Session-ID", c.sessionID)

	conn, err := c.dialer.Dial(ctx, c.cfg.URL, header)

	c.mu.Lock()
	if c.dialGen != gen {
		// 期间发生过 Disconnect 或新的建连，状态归新一轮所有
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.logger.Debug("Discarding stale realtime dial", zap.Uint64("generation", gen))
		return &domain.TransportError{Op: "connect", Err: ErrNotConnected}
	}
	if err != nil {
		c.setStatusLocked(StatusDisconnected)
		state := c.stateLocked(err.Error())
		c.mu.Unlock()

		c.logger.Warn("Realtime connect failed",
			zap.String("url", c.cfg.URL),
			zap.Int("reconnect_attempt", state.ReconnectAttempt),
			zap.Error(err),
		)
		transportErr := &domain.TransportError{Op: "connect", Err: err}
		c.Emit(EventError, transportErr)
		c.Emit(EventDisconnected, state)
		c.scheduleReconnect()
		return transportErr
	}

	c.conn = conn
	c.attempt = 0
	c.setStatusLocked(StatusConnected)
	state := c.stateLocked("")
	c.mu.Unlock()

	c.logger.Info("Realtime channel connected",
		zap.String("url", c.cfg.URL),
		zap.String("session_id", c.sessionID),
	)
	c.Emit(EventConnected, state)

	go c.readLoop(conn)
	return nil
}

// readLoop 单 goroutine 读取，按到达顺序分发
func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleClose(conn Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// 已被 Disconnect 或新连接替换
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.setStatusLocked(StatusDisconnected)
	state := c.stateLocked(cause.Error())
	explicit := c.closing
	c.mu.Unlock()

	conn.Close()

	c.logger.Warn("Realtime channel closed",
		zap.String("reason", state.Reason),
		zap.Bool("explicit", explicit),
	)
	c.Emit(EventDisconnected, state)

	if !explicit {
		c.scheduleReconnect()
	}
}

// scheduleReconnect 第 n 次重连延迟 base·2^(n-1)；次数用尽后发出 max_reconnect_attempts_reached 并停止
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	if c.attempt >= c.cfg.MaxReconnectAttempts {
		state := c.stateLocked("max reconnect attempts reached")
		c.mu.Unlock()

		reconnectExhaustedTotal.Inc()
		c.logger.Error("Max reconnect attempts reached",
			zap.Int("max_attempts", c.cfg.MaxReconnectAttempts),
		)
		c.Emit(EventMaxReconnectAttempts, state)
		return
	}

	c.attempt++
	attempt := c.attempt
	delay := c.backoff(attempt)
	c.timer = c.scheduler.AfterFunc(delay, c.reconnect)
	c.mu.Unlock()

	reconnectAttemptsTotal.Inc()
	c.logger.Info("Scheduling realtime reconnect",
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", c.cfg.MaxReconnectAttempts),
		zap.Duration("delay", delay),
	)
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.ReconnectBaseDelay * time.Duration(1<<uint(attempt-1))
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.timer = nil
	if c.closing || c.status != StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(StatusConnecting)
	c.dialGen++
	gen := c.dialGen
	c.mu.Unlock()

	ctx := context.Background()
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	// 失败已记录并触发下一次调度
	_ = c.dial(ctx, gen)
}

// Disconnect 显式断开：取消待执行的重连、关闭连接、清除全部订阅
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.dialGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	c.Emitter.Clear()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("Realtime close error", zap.Error(err))
		}
	}
	c.logger.Info("Realtime channel disconnected")
}

// SubscribeToRoom 发送房间订阅意向；生效以 subscription_confirmed 为准
func (c *Client) SubscribeToRoom(roomID domain.ID) error {
	return c.send("subscribe_room", outboundFrame{Type: "subscribe_room", RoomID: roomID})
}

// UnsubscribeFromRoom 发送取消房间订阅意向
func (c *Client) UnsubscribeFromRoom(roomID domain.ID) error {
	return c.send("unsubscribe_room", outboundFrame{Type: "unsubscribe_room", RoomID: roomID})
}

// Ping 发送心跳（毫秒时间戳）
func (c *Client) Ping() error {
	return c.send("ping", outboundFrame{Type: "ping", Timestamp: c.now().UnixMilli()})
}

func (c *Client) send(op string, frame outboundFrame) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if conn == nil || !connected {
		return &domain.TransportError{Op: op, Err: ErrNotConnected}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	return nil
}

// handleFrame 解码入站帧并重新发出本地事件；未知类型仅记录日志后丢弃
func (c *Client) handleFrame(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		framesDroppedTotal.WithLabelValues("malformed").Inc()
		c.logger.Warn("Malformed realtime frame dropped",
			zap.Int("size", len(data)),
			zap.Error(err),
		)
		return
	}

	switch head.Type {
	case EventRoomStatusUpdate:
		var u domain.RoomStatusUpdate
		if !c.decode(head.Type, data, &u) {
			return
		}
		c.Emit(EventRoomStatusUpdate, u)
		switch u.Status {
		case domain.RoomStatusOccupied:
			c.Emit(EventRoomOccupied, u)
		case domain.RoomStatusAvailable:
			c.Emit(EventRoomAvailable, u)
		case domain.RoomStatusMaintenance:
			c.Emit(EventRoomMaintenance, u)
		}

	case EventRoomAvailabilityUpdate:
		var u domain.RoomAvailabilityUpdate
		if !c.decode(head.Type, data, &u) {
			return
		}
		c.Emit(EventRoomAvailabilityUpdate, u)

	case EventAdmissionUpdate:
		var u domain.AdmissionUpdate
		if !c.decode(head.Type, data, &u) {
			return
		}
		c.Emit(EventAdmissionUpdate, u)
		switch u.Status {
		case domain.AdmissionStatusDischarged:
			c.Emit(EventAdmissionDischarged, u)
		case domain.AdmissionStatusActive:
			c.Emit(EventAdmissionCreated, u)
		}

	case EventActiveAdmissionsUpdate:
		var u domain.ActiveAdmissionsUpdate
		if !c.decode(head.Type, data, &u) {
			return
		}
		c.Emit(EventActiveAdmissionsUpdate, u)

	case EventSubscriptionConfirmed, EventUnsubscriptionConfirmed:
		var ack domain.SubscriptionAck
		if !c.decode(head.Type, data, &ack) {
			return
		}
		c.Emit(head.Type, ack)

	case EventPong:
		var p domain.Pong
		if !c.decode(head.Type, data, &p) {
			return
		}
		c.Emit(EventPong, p)

	default:
		framesDroppedTotal.WithLabelValues("unknown_type").Inc()
		c.logger.Debug("Unknown realtime frame type dropped", zap.String("type", head.Type))
		return
	}

	framesReceivedTotal.WithLabelValues(head.Type).Inc()
}

func (c *Client) decode(frameType string, data []byte, v interface{}) bool {
	if err := json.Unmarshal(data, v); err != nil {
		framesDroppedTotal.WithLabelValues("decode_error").Inc()
		c.logger.Warn("Failed to decode realtime frame",
			zap.String("type", frameType),
			zap.Error(err),
		)
		return false
	}
	return true
}
