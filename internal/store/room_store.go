package store

import (
	"context"
	"fmt"
	"sync"

	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/realtime"

	"go.uber.org/zap"
)

// RoomState 房间 store 状态
type RoomState struct {
	Meta
	Rooms          []domain.Room      `json:"rooms"`
	AvailableRooms []domain.Room      `json:"available_rooms"`
	Selected       *domain.Room       `json:"selected_room,omitempty"`
	Filters        domain.RoomFilters `json:"filters"`
}

// clone 深拷贝，调用方可自由修改
func (s RoomState) clone() RoomState {
	out := s
	out.Rooms = append([]domain.Room{}, s.Rooms...)
	out.AvailableRooms = append([]domain.Room{}, s.AvailableRooms...)
	if s.Selected != nil {
		sel := *s.Selected
		out.Selected = &sel
	}
	return out
}

// roomAction 房间 store 的变更，只能由本包定义
type roomAction interface {
	apply(st *RoomState)
	name() string
}

type roomRequestStarted struct{}

func (roomRequestStarted) name() string         { return "request_started" }
func (roomRequestStarted) apply(st *RoomState) { st.started() }

type roomErrorCleared struct{}

func (roomErrorCleared) name() string         { return "error_cleared" }
func (roomErrorCleared) apply(st *RoomState) { st.Error = "" }

type roomRequestFailed struct{ message string }

func (roomRequestFailed) name() string { return "request_failed" }
func (a roomRequestFailed) apply(st *RoomState) {
	st.settled()
	st.Error = a.message
}

// roomErrorRecorded 本地前置校验失败，不涉及请求计数
type roomErrorRecorded struct{ message string }

func (roomErrorRecorded) name() string           { return "error_recorded" }
func (a roomErrorRecorded) apply(st *RoomState) { st.Error = a.message }

type roomsLoaded struct {
	rooms   []domain.Room
	filters domain.RoomFilters
}

func (roomsLoaded) name() string { return "rooms_loaded" }
func (a roomsLoaded) apply(st *RoomState) {
	st.settled()
	st.Rooms = append([]domain.Room{}, a.rooms...)
	st.Filters = a.filters
}

type availableRoomsLoaded struct{ rooms []domain.Room }

func (availableRoomsLoaded) name() string { return "available_rooms_loaded" }
func (a availableRoomsLoaded) apply(st *RoomState) {
	st.settled()
	st.AvailableRooms = append([]domain.Room{}, a.rooms...)
}

type roomCreated struct{ room domain.Room }

func (roomCreated) name() string { return "room_created" }
func (a roomCreated) apply(st *RoomState) {
	st.settled()
	if i := indexRoom(st.Rooms, a.room.ID); i >= 0 {
		st.Rooms[i] = a.room
	} else {
		st.Rooms = append([]domain.Room{a.room}, st.Rooms...)
	}
	syncAvailable(st, a.room)
}

// roomReplaced 请求返回的完整记录替换本地记录
type roomReplaced struct{ room domain.Room }

func (roomReplaced) name() string { return "room_replaced" }
func (a roomReplaced) apply(st *RoomState) {
	st.settled()
	if i := indexRoom(st.Rooms, a.room.ID); i >= 0 {
		st.Rooms[i] = a.room
	}
	syncAvailable(st, a.room)
	if st.Selected != nil && st.Selected.ID == a.room.ID {
		room := a.room
		st.Selected = &room
	}
}

type roomSelected struct {
	room    *domain.Room
	request bool
}

func (roomSelected) name() string { return "room_selected" }
func (a roomSelected) apply(st *RoomState) {
	if a.request {
		st.settled()
	}
	st.Selected = a.room
}

type roomFiltersSet struct{ filters domain.RoomFilters }

func (roomFiltersSet) name() string           { return "filters_set" }
func (a roomFiltersSet) apply(st *RoomState) { st.Filters = a.filters }

// roomStatusPatched 实时事件的局部更新：只改 status
type roomStatusPatched struct {
	id     domain.ID
	status domain.RoomStatus
}

func (roomStatusPatched) name() string { return "status_patched" }
func (a roomStatusPatched) apply(st *RoomState) {
	known := false
	var patched domain.Room
	for i := range st.Rooms {
		if st.Rooms[i].ID == a.id {
			st.Rooms[i].Status = a.status
			patched = st.Rooms[i]
			known = true
		}
	}

	j := indexRoom(st.AvailableRooms, a.id)
	switch {
	case a.status != domain.RoomStatusAvailable && j >= 0:
		st.AvailableRooms = append(st.AvailableRooms[:j:j], st.AvailableRooms[j+1:]...)
	case a.status == domain.RoomStatusAvailable && j >= 0:
		st.AvailableRooms[j].Status = a.status
	case a.status == domain.RoomStatusAvailable && known:
		st.AvailableRooms = append(st.AvailableRooms, patched)
	}

	if st.Selected != nil && st.Selected.ID == a.id {
		sel := *st.Selected
		sel.Status = a.status
		st.Selected = &sel
	}
}

type roomsRestored struct{ snapshot RoomState }

func (roomsRestored) name() string { return "restored" }
func (a roomsRestored) apply(st *RoomState) {
	st.Rooms = a.snapshot.Rooms
	st.AvailableRooms = a.snapshot.AvailableRooms
	st.Filters = a.snapshot.Filters
}

func indexRoom(rooms []domain.Room, id domain.ID) int {
	for i := range rooms {
		if rooms[i].ID == id {
			return i
		}
	}
	return -1
}

// syncAvailable 可用子集跟随完整记录的状态
func syncAvailable(st *RoomState, room domain.Room) {
	j := indexRoom(st.AvailableRooms, room.ID)
	switch {
	case room.Status == domain.RoomStatusAvailable && j >= 0:
		st.AvailableRooms[j] = room
	case room.Status == domain.RoomStatusAvailable:
		st.AvailableRooms = append(st.AvailableRooms, room)
	case j >= 0:
		st.AvailableRooms = append(st.AvailableRooms[:j:j], st.AvailableRooms[j+1:]...)
	}
}

// RoomStore 房间集合的唯一写入者
type RoomStore struct {
	api    RoomAPI
	logger *zap.Logger

	mu     sync.Mutex
	state  RoomState
	closed bool
	subs   []*realtime.Subscription
}

// NewRoomStore 创建房间 store
func NewRoomStore(api RoomAPI, logger *zap.Logger) *RoomStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomStore{
		api:    api,
		logger: logger.With(zap.String("store", "rooms")),
		state: RoomState{
			Rooms:          []domain.Room{},
			AvailableRooms: []domain.Room{},
		},
	}
}

func (s *RoomStore) dispatch(a roomAction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	a.apply(&s.state)
	s.state.Version++
	dispatchTotal.WithLabelValues("rooms", a.name()).Inc()
	return true
}

func (s *RoomStore) fail(op string, err error, started bool) error {
	actionErrorsTotal.WithLabelValues("rooms", op).Inc()
	s.logger.Warn("Room store action failed", zap.String("op", op), zap.Error(err))
	if started {
		s.dispatch(roomRequestFailed{message: domain.Message(err)})
	} else {
		s.dispatch(roomErrorRecorded{message: domain.Message(err)})
	}
	return err
}

// Bind 订阅房间实时事件
func (s *RoomStore) Bind(events RoomEvents) {
	subs := []*realtime.Subscription{
		events.OnRoomStatusUpdate(s.ApplyStatusUpdate),
		events.OnRoomAvailabilityUpdate(s.ApplyAvailabilityUpdate),
	}
	s.mu.Lock()
	s.subs = append(s.subs, subs...)
	s.mu.Unlock()
}

// ApplyStatusUpdate 处理 room_status_update
func (s *RoomStore) ApplyStatusUpdate(u domain.RoomStatusUpdate) {
	if !u.Status.Valid() {
		s.logger.Warn("Ignoring room status update with unknown status",
			zap.String("room_id", u.RoomID.String()),
			zap.String("status", string(u.Status)),
		)
		return
	}
	s.dispatch(roomStatusPatched{id: u.RoomID, status: u.Status})
}

// ApplyAvailabilityUpdate 处理 room_availability_update
func (s *RoomStore) ApplyAvailabilityUpdate(u domain.RoomAvailabilityUpdate) {
	s.dispatch(roomStatusPatched{id: u.RoomID, status: u.Status()})
}

// FetchRooms 拉取房间列表并整体替换
func (s *RoomStore) FetchRooms(ctx context.Context, filters domain.RoomFilters) ([]domain.Room, error) {
	s.dispatch(roomRequestStarted{})
	rooms, err := s.api.ListRooms(ctx, filters)
	if err != nil {
		return nil, s.fail("fetch_rooms", err, true)
	}
	if !s.dispatch(roomsLoaded{rooms: rooms, filters: filters}) {
		return nil, ErrStoreClosed
	}
	return rooms, nil
}

// FetchAvailableRooms 拉取可用房间并整体替换可用子集
func (s *RoomStore) FetchAvailableRooms(ctx context.Context, roomType domain.RoomType) ([]domain.Room, error) {
	s.dispatch(roomRequestStarted{})
	rooms, err := s.api.ListAvailableRooms(ctx, roomType)
	if err != nil {
		return nil, s.fail("fetch_available_rooms", err, true)
	}
	if !s.dispatch(availableRoomsLoaded{rooms: rooms}) {
		return nil, ErrStoreClosed
	}
	return rooms, nil
}

// GetRoom 获取单个房间并设为选中
func (s *RoomStore) GetRoom(ctx context.Context, id domain.ID) (domain.Room, error) {
	s.dispatch(roomRequestStarted{})
	room, err := s.api.GetRoom(ctx, id)
	if err != nil {
		return domain.Room{}, s.fail("get_room", err, true)
	}
	if !s.dispatch(roomSelected{room: &room, request: true}) {
		return domain.Room{}, ErrStoreClosed
	}
	return room, nil
}

// CreateRoom 创建房间，新记录插入列表头部
func (s *RoomStore) CreateRoom(ctx context.Context, input domain.RoomInput) (domain.Room, error) {
	s.dispatch(roomRequestStarted{})
	room, err := s.api.CreateRoom(ctx, input)
	if err != nil {
		return domain.Room{}, s.fail("create_room", err, true)
	}
	if !s.dispatch(roomCreated{room: room}) {
		return domain.Room{}, ErrStoreClosed
	}
	return room, nil
}

// UpdateRoom 更新房间，以返回的完整记录替换本地记录
func (s *RoomStore) UpdateRoom(ctx context.Context, id domain.ID, input domain.RoomInput) (domain.Room, error) {
	s.dispatch(roomRequestStarted{})
	room, err := s.api.UpdateRoom(ctx, id, input)
	if err != nil {
		return domain.Room{}, s.fail("update_room", err, true)
	}
	return s.replaced(id, room)
}

// UpdateRoomStatus 修改房间状态，以返回的完整记录替换本地记录
func (s *RoomStore) UpdateRoomStatus(ctx context.Context, id domain.ID, status domain.RoomStatus) (domain.Room, error) {
	if !status.Valid() {
		return domain.Room{}, s.fail("update_room_status",
			&domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown room status %q", status)}, false)
	}
	// 本地未知的房间交给后端判断
	if current, ok := s.RoomByID(id); ok && current.Status != status && !domain.CanTransition(current.Status, status) {
		return domain.Room{}, s.fail("update_room_status", &domain.InvalidStateError{
			Entity: "room", ID: id, State: string(current.Status), Op: fmt.Sprintf("set status %s for", status),
		}, false)
	}
	s.dispatch(roomRequestStarted{})
	room, err := s.api.UpdateRoomStatus(ctx, id, status)
	if err != nil {
		return domain.Room{}, s.fail("update_room_status", err, true)
	}
	return s.replaced(id, room)
}

func (s *RoomStore) replaced(id domain.ID, room domain.Room) (domain.Room, error) {
	if room.ID.IsZero() {
		room.ID = id
	}
	if !s.dispatch(roomReplaced{room: room}) {
		return domain.Room{}, ErrStoreClosed
	}
	return room, nil
}

// ScheduleMaintenance 可用房间转入维护
func (s *RoomStore) ScheduleMaintenance(ctx context.Context, id domain.ID) (domain.Room, error) {
	if err := s.requireStatus(id, domain.RoomStatusAvailable, "schedule maintenance for"); err != nil {
		return domain.Room{}, s.fail("schedule_maintenance", err, false)
	}
	return s.UpdateRoomStatus(ctx, id, domain.RoomStatusMaintenance)
}

// CompleteMaintenance 维护中的房间恢复可用
func (s *RoomStore) CompleteMaintenance(ctx context.Context, id domain.ID) (domain.Room, error) {
	if err := s.requireStatus(id, domain.RoomStatusMaintenance, "complete maintenance for"); err != nil {
		return domain.Room{}, s.fail("complete_maintenance", err, false)
	}
	return s.UpdateRoomStatus(ctx, id, domain.RoomStatusAvailable)
}

func (s *RoomStore) requireStatus(id domain.ID, want domain.RoomStatus, op string) error {
	room, ok := s.RoomByID(id)
	if !ok {
		return fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	if room.Status != want {
		return &domain.InvalidStateError{Entity: "room", ID: id, State: string(room.Status), Op: op}
	}
	return nil
}

// CheckRoomAvailability 查询房间可用性，不修改集合
func (s *RoomStore) CheckRoomAvailability(ctx context.Context, id domain.ID) (domain.RoomAvailability, error) {
	s.dispatch(roomErrorCleared{})
	availability, err := s.api.CheckRoomAvailability(ctx, id)
	if err != nil {
		return domain.RoomAvailability{}, s.fail("check_room_availability", err, false)
	}
	return availability, nil
}

// Select 设置选中房间（nil 清除）
func (s *RoomStore) Select(room *domain.Room) {
	if room != nil {
		cp := *room
		room = &cp
	}
	s.dispatch(roomSelected{room: room})
}

// SetFilters 设置过滤条件
func (s *RoomStore) SetFilters(filters domain.RoomFilters) {
	s.dispatch(roomFiltersSet{filters: filters})
}

// ClearError 清除错误
func (s *RoomStore) ClearError() {
	s.dispatch(roomErrorCleared{})
}

// RoomByID 本地查找房间（先查完整集合，再查可用子集）
func (s *RoomStore) RoomByID(id domain.ID) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexRoom(s.state.Rooms, id); i >= 0 {
		return s.state.Rooms[i], true
	}
	if i := indexRoom(s.state.AvailableRooms, id); i >= 0 {
		return s.state.AvailableRooms[i], true
	}
	return domain.Room{}, false
}

// Snapshot 当前状态副本
func (s *RoomStore) Snapshot() RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Statistics 由当前集合推导的房间统计
func (s *RoomStore) Statistics() domain.RoomStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RoomStatistics(s.state.Rooms)
}

// Restore 预热：仅在 store 从未写入时应用快照
func (s *RoomStore) Restore(snapshot RoomState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state.Version != 0 {
		return false
	}
	snap := snapshot.clone()
	a := roomsRestored{snapshot: snap}
	a.apply(&s.state)
	s.state.Version++
	dispatchTotal.WithLabelValues("rooms", a.name()).Inc()
	s.logger.Info("Room store restored from snapshot",
		zap.Int("rooms", len(snap.Rooms)),
		zap.Int("available_rooms", len(snap.AvailableRooms)),
	)
	return true
}

// Close 取消事件订阅；之后返回的请求结果不再写入
func (s *RoomStore) Close() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
