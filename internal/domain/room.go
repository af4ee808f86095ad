package domain

import "time"

// RoomType 房间类型
type RoomType string

const (
	RoomTypeStandard RoomType = "standard"
	RoomTypePrivate  RoomType = "private"
	RoomTypeICU      RoomType = "icu"
)

// RoomTypes 全部房间类型（统计时用于初始化分组）
var RoomTypes = []RoomType{RoomTypeStandard, RoomTypePrivate, RoomTypeICU}

// Valid 是否为已知房间类型
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeStandard, RoomTypePrivate, RoomTypeICU:
		return true
	}
	return false
}

// RoomStatus 房间状态
type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "available"
	RoomStatusOccupied    RoomStatus = "occupied"
	RoomStatusMaintenance RoomStatus = "maintenance"
)

// Valid 是否为已知房间状态
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusAvailable, RoomStatusOccupied, RoomStatusMaintenance:
		return true
	}
	return false
}

// validRoomTransitions 后端允许的状态迁移
var validRoomTransitions = map[RoomStatus][]RoomStatus{
	RoomStatusAvailable:   {RoomStatusOccupied, RoomStatusMaintenance},
	RoomStatusOccupied:    {RoomStatusAvailable},
	RoomStatusMaintenance: {RoomStatusAvailable},
}

// CanTransition 判断 from → to 是否为合法迁移
func CanTransition(from, to RoomStatus) bool {
	for _, s := range validRoomTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Room 房间
type Room struct {
	ID             ID         `json:"id"`
	RoomNumber     string     `json:"room_number"`
	Type           RoomType   `json:"type"`
	Status         RoomStatus `json:"status"`
	DailyRateCents int64      `json:"daily_rate_cents"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// RoomFilters 房间查询过滤条件
type RoomFilters struct {
	Type          RoomType   `json:"type,omitempty"`
	Status        RoomStatus `json:"status,omitempty"`
	AvailableOnly bool       `json:"available_only"`
}

// RoomInput 创建/更新房间的请求体
type RoomInput struct {
	RoomNumber     string     `json:"room_number,omitempty"`
	Type           RoomType   `json:"type,omitempty"`
	Status         RoomStatus `json:"status,omitempty"`
	DailyRateCents int64      `json:"daily_rate_cents,omitempty"`
}

// RoomAvailability 房间可用性检查结果
type RoomAvailability struct {
	RoomID    ID     `json:"room_id"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// RoomStatistics 房间统计（由当前集合推导）
type RoomStatistics struct {
	TotalRooms       int     `json:"total_rooms"`
	AvailableRooms   int     `json:"available_rooms"`
	OccupiedRooms    int     `json:"occupied_rooms"`
	MaintenanceRooms int     `json:"maintenance_rooms"`
	OccupancyRate    float64 `json:"occupancy_rate"`
}
