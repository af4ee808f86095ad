package realtime

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// 本地事件名
const (
	EventConnected               = "connected"
	EventDisconnected            = "disconnected"
	EventError                   = "error"
	EventMaxReconnectAttempts    = "max_reconnect_attempts_reached"
	EventRoomStatusUpdate        = "room_status_update"
	EventRoomOccupied            = "room_occupied"
	EventRoomAvailable           = "room_available"
	EventRoomMaintenance         = "room_maintenance"
	EventRoomAvailabilityUpdate  = "room_availability_update"
	EventAdmissionUpdate         = "admission_update"
	EventAdmissionCreated        = "admission_created"
	EventAdmissionDischarged     = "admission_discharged"
	EventActiveAdmissionsUpdate  = "active_admissions_update"
	EventSubscriptionConfirmed   = "subscription_confirmed"
	EventUnsubscriptionConfirmed = "unsubscription_confirmed"
	EventPong                    = "pong"
)

// Handler 本地事件处理函数，payload 为对应事件的类型化载荷
type Handler func(payload interface{})

type listener struct {
	id      uint64
	handler Handler
}

// Emitter 本地发布/订阅
// 同一事件的处理函数按注册顺序同步调用；某个处理函数 panic 不影响其他处理函数
type Emitter struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string][]listener
	logger    *zap.Logger
}

// NewEmitter 创建事件分发器
func NewEmitter(logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		listeners: make(map[string][]listener),
		logger:    logger,
	}
}

// Subscription 订阅句柄
type Subscription struct {
	once    sync.Once
	emitter *Emitter
	event   string
	id      uint64
}

// Unsubscribe 取消订阅，可重复调用
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.emitter.remove(s.event, s.id)
	})
}

// On 注册事件处理函数
func (e *Emitter) On(event string, handler Handler) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], listener{id: id, handler: handler})
	return &Subscription{emitter: e, event: event, id: id}
}

func (e *Emitter) remove(event string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[event]
	for i, l := range ls {
		if l.id == id {
			// 复制而不是原地修改，正在进行的 Emit 持有旧切片
			next := make([]listener, 0, len(ls)-1)
			next = append(next, ls[:i]...)
			next = append(next, ls[i+1:]...)
			if len(next) == 0 {
				delete(e.listeners, event)
			} else {
				e.listeners[event] = next
			}
			return
		}
	}
}

// Emit 同步分发事件
func (e *Emitter) Emit(event string, payload interface{}) {
	e.mu.Lock()
	ls := e.listeners[event]
	e.mu.Unlock()

	for _, l := range ls {
		e.invoke(event, l, payload)
	}
}

func (e *Emitter) invoke(event string, l listener, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			handlerPanicsTotal.WithLabelValues(event).Inc()
			e.logger.Error("Realtime listener panicked",
				zap.String("event", event),
				zap.Uint64("listener_id", l.id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	l.handler(payload)
}

// ListenerCount 某事件当前的处理函数数量
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Clear 清除全部订阅
func (e *Emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]listener)
}
