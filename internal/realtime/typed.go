package realtime

import "clinic-roomsync/internal/domain"

// OnRoomStatusUpdate 订阅 room_status_update
func (e *Emitter) OnRoomStatusUpdate(fn func(domain.RoomStatusUpdate)) *Subscription {
	return e.On(EventRoomStatusUpdate, func(p interface{}) {
		if u, ok := p.(domain.RoomStatusUpdate); ok {
			fn(u)
		}
	})
}

// OnRoomAvailabilityUpdate 订阅 room_availability_update
func (e *Emitter) OnRoomAvailabilityUpdate(fn func(domain.RoomAvailabilityUpdate)) *Subscription {
	return e.On(EventRoomAvailabilityUpdate, func(p interface{}) {
		if u, ok := p.(domain.RoomAvailabilityUpdate); ok {
			fn(u)
		}
	})
}

// OnAdmissionUpdate 订阅 admission_update
func (e *Emitter) OnAdmissionUpdate(fn func(domain.AdmissionUpdate)) *Subscription {
	return e.On(EventAdmissionUpdate, func(p interface{}) {
		if u, ok := p.(domain.AdmissionUpdate); ok {
			fn(u)
		}
	})
}

// OnActiveAdmissionsUpdate 订阅 active_admissions_update
func (e *Emitter) OnActiveAdmissionsUpdate(fn func(domain.ActiveAdmissionsUpdate)) *Subscription {
	return e.On(EventActiveAdmissionsUpdate, func(p interface{}) {
		if u, ok := p.(domain.ActiveAdmissionsUpdate); ok {
			fn(u)
		}
	})
}

// OnConnectionEvent 订阅连接生命周期事件（connected / disconnected / max_reconnect_attempts_reached）
func (e *Emitter) OnConnectionEvent(event string, fn func(ConnectionState)) *Subscription {
	return e.On(event, func(p interface{}) {
		if s, ok := p.(ConnectionState); ok {
			fn(s)
		}
	})
}
