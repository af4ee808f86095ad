package store

import (
	"time"

	"clinic-roomsync/internal/domain"
)

// recentWindow 近期入院统计窗口
const recentWindow = 7 * 24 * time.Hour

// RoomStatistics 房间统计，纯函数
func RoomStatistics(rooms []domain.Room) domain.RoomStatistics {
	stats := domain.RoomStatistics{TotalRooms: len(rooms)}
	for _, r := range rooms {
		switch r.Status {
		case domain.RoomStatusAvailable:
			stats.AvailableRooms++
		case domain.RoomStatusOccupied:
			stats.OccupiedRooms++
		case domain.RoomStatusMaintenance:
			stats.MaintenanceRooms++
		}
	}
	stats.OccupancyRate = percent(stats.OccupiedRooms, stats.TotalRooms)
	return stats
}

// AdmissionStatistics 住院统计，纯函数
// admissions 与 active 两个视图按 ID 合并后统计；房型优先取记录自带的 room_type，缺失时查 rooms
func AdmissionStatistics(admissions, active []domain.Admission, rooms RoomLookup, now time.Time) domain.AdmissionStatistics {
	merged := make([]domain.Admission, 0, len(admissions)+len(active))
	seen := make(map[domain.ID]bool, len(admissions))
	for _, a := range admissions {
		seen[a.ID] = true
		merged = append(merged, a)
	}
	for _, a := range active {
		if !seen[a.ID] {
			seen[a.ID] = true
			merged = append(merged, a)
		}
	}

	stats := domain.AdmissionStatistics{
		TotalAdmissions:   len(merged),
		RoomTypeBreakdown: make(map[domain.RoomType]int, len(domain.RoomTypes)),
	}
	for _, t := range domain.RoomTypes {
		stats.RoomTypeBreakdown[t] = 0
	}

	var (
		stays     int
		stayHours float64
	)
	since := now.Add(-recentWindow)
	for _, a := range merged {
		// 已排期的未来入院同样计入
		if !a.AdmissionDate.Before(since) {
			stats.RecentAdmissions7Days++
		}

		switch a.Status {
		case domain.AdmissionStatusActive:
			stats.ActiveAdmissions++
			if t, ok := roomTypeOf(a, rooms); ok {
				stats.RoomTypeBreakdown[t]++
			}
		case domain.AdmissionStatusDischarged:
			stats.DischargedAdmissions++
			if a.DischargeDate != nil {
				stays++
				stayHours += a.DurationHours()
			}
		}
	}

	if stays > 0 {
		avg := stayHours / float64(stays)
		stats.AverageLengthOfStayHours = round2(avg)
		stats.AverageLengthOfStayDays = round2(avg / 24)
	}
	stats.OccupancyRate = percent(stats.ActiveAdmissions, stats.TotalAdmissions)
	return stats
}

func roomTypeOf(a domain.Admission, rooms RoomLookup) (domain.RoomType, bool) {
	if a.RoomType.Valid() {
		return a.RoomType, true
	}
	if rooms == nil {
		return "", false
	}
	room, ok := rooms.RoomByID(a.RoomID)
	if !ok || !room.Type.Valid() {
		return "", false
	}
	return room.Type, true
}
