package store

import (
	"testing"
	"time"

	"clinic-roomsync/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestRoomStatistics_Empty(t *testing.T) {
	stats := RoomStatistics(nil)
	assert.Zero(t, stats.TotalRooms)
	assert.Zero(t, stats.OccupancyRate)
}

func TestAdmissionStatistics(t *testing.T) {
	discharged := func(id string, admitted time.Time, hours float64) domain.Admission {
		a := activeAdmission(id, "1", admitted)
		dd := admitted.Add(time.Duration(hours * float64(time.Hour)))
		a.DischargeDate = &dd
		a.Status = domain.AdmissionStatusDischarged
		return a
	}

	icu := activeAdmission("10", "3", testNow.Add(-2*time.Hour))
	icu.RoomType = domain.RoomTypeICU
	viaLookup := activeAdmission("11", "2", testNow.Add(-10*24*time.Hour))
	unknownRoom := activeAdmission("12", "404", testNow.Add(-time.Hour))
	// 只出现在在院视图里的记录也参与统计
	onlyActive := activeAdmission("13", "2", testNow.Add(-30*time.Minute))

	admissions := []domain.Admission{
		icu, viaLookup, unknownRoom,
		discharged("20", testNow.Add(-3*24*time.Hour), 10),
		discharged("21", testNow.Add(-20*24*time.Hour), 50),
		{ID: "22", Status: domain.AdmissionStatusDischarged, AdmissionDate: testNow.Add(-30 * 24 * time.Hour)},
	}
	active := []domain.Admission{icu, viaLookup, unknownRoom, onlyActive}
	rooms := mapRooms{"2": {ID: "2", Type: domain.RoomTypePrivate}}

	stats := AdmissionStatistics(admissions, active, rooms, testNow)

	assert.Equal(t, 7, stats.TotalAdmissions)
	assert.Equal(t, 4, stats.ActiveAdmissions)
	assert.Equal(t, 3, stats.DischargedAdmissions)
	assert.InDelta(t, 30.0, stats.AverageLengthOfStayHours, 0.001)
	assert.InDelta(t, 1.25, stats.AverageLengthOfStayDays, 0.001)
	assert.Equal(t, 4, stats.RecentAdmissions7Days)
	assert.Equal(t, map[domain.RoomType]int{
		domain.RoomTypeStandard: 0,
		domain.RoomTypePrivate:  2,
		domain.RoomTypeICU:      1,
	}, stats.RoomTypeBreakdown)
	assert.InDelta(t, 4.0/7.0*100, stats.OccupancyRate, 0.001)
}

func TestAdmissionStatistics_NoDischargesAndNoRooms(t *testing.T) {
	stats := AdmissionStatistics([]domain.Admission{activeAdmission("1", "2", testNow)}, nil, nil, testNow)

	assert.Equal(t, 1, stats.TotalAdmissions)
	assert.Zero(t, stats.AverageLengthOfStayHours)
	assert.Len(t, stats.RoomTypeBreakdown, 3)
	assert.Equal(t, 1, stats.RecentAdmissions7Days)
}

func TestAdmissionStatistics_RecentCountsScheduledAdmissions(t *testing.T) {
	scheduled := activeAdmission("1", "2", testNow.Add(48*time.Hour))
	old := activeAdmission("2", "2", testNow.Add(-8*24*time.Hour))

	stats := AdmissionStatistics([]domain.Admission{scheduled, old}, nil, nil, testNow)

	assert.Equal(t, 1, stats.RecentAdmissions7Days)
}
