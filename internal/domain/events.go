package domain

// Timestamp 服务端时间戳（后端发送的是事件循环时间，单位秒，可能带小数）
type Timestamp float64

// RoomStatusUpdate room_status_update 事件
type RoomStatusUpdate struct {
	RoomID    ID         `json:"room_id"`
	Status    RoomStatus `json:"status"`
	RoomData  *Room      `json:"room_data,omitempty"`
	Timestamp Timestamp  `json:"timestamp,omitempty"`
}

// RoomAvailabilityUpdate room_availability_update 事件
type RoomAvailabilityUpdate struct {
	RoomID    ID        `json:"room_id"`
	Available bool      `json:"available"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
}

// Status 可用性对应的房间状态
func (u RoomAvailabilityUpdate) Status() RoomStatus {
	if u.Available {
		return RoomStatusAvailable
	}
	return RoomStatusOccupied
}

// AdmissionUpdate admission_update 事件
type AdmissionUpdate struct {
	AdmissionID   ID              `json:"admission_id"`
	Status        AdmissionStatus `json:"status"`
	AdmissionData *Admission      `json:"admission_data,omitempty"`
	Timestamp     Timestamp       `json:"timestamp,omitempty"`
}

// ActiveAdmissionsUpdate active_admissions_update 事件（在院列表快照）
type ActiveAdmissionsUpdate struct {
	Admissions []Admission `json:"admissions"`
	Timestamp  Timestamp   `json:"timestamp,omitempty"`
}

// SubscriptionAck subscription_confirmed / unsubscription_confirmed 事件
type SubscriptionAck struct {
	RoomID    ID        `json:"room_id"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
}

// Pong 心跳回应
type Pong struct {
	Timestamp Timestamp `json:"timestamp,omitempty"`
}
