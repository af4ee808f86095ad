package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"clinic-roomsync/internal/api"
	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/realtime"

	"github.com/go-playground/validator/v10"
)

// RoomAPI 房间后端接口
type RoomAPI interface {
	ListRooms(ctx context.Context, filters domain.RoomFilters) ([]domain.Room, error)
	GetRoom(ctx context.Context, id domain.ID) (domain.Room, error)
	CreateRoom(ctx context.Context, input domain.RoomInput) (domain.Room, error)
	UpdateRoom(ctx context.Context, id domain.ID, input domain.RoomInput) (domain.Room, error)
	UpdateRoomStatus(ctx context.Context, id domain.ID, status domain.RoomStatus) (domain.Room, error)
	ListAvailableRooms(ctx context.Context, roomType domain.RoomType) ([]domain.Room, error)
	CheckRoomAvailability(ctx context.Context, id domain.ID) (domain.RoomAvailability, error)
}

// AdmissionAPI 住院后端接口
type AdmissionAPI interface {
	ListAdmissions(ctx context.Context, filters domain.AdmissionFilters) ([]domain.Admission, error)
	GetAdmission(ctx context.Context, id domain.ID) (domain.Admission, error)
	CreateAdmission(ctx context.Context, input domain.AdmissionInput) (domain.Admission, error)
	DischargeAdmission(ctx context.Context, id domain.ID, req api.DischargeRequest) (api.DischargeResponse, error)
	ListActiveAdmissions(ctx context.Context) ([]domain.Admission, error)
	ActiveAdmissionStatistics(ctx context.Context) (api.ServerStatistics, error)
	PatientAdmissions(ctx context.Context, patientID domain.ID) ([]domain.Admission, error)
}

// EligibilityChecker 提交入院时的资格校验，返回 (是否通过, 不通过原因, 调用错误)
type EligibilityChecker interface {
	RoomAvailable(ctx context.Context, roomID domain.ID) (bool, string, error)
	PatientEligible(ctx context.Context, patientID domain.ID) (bool, string, error)
	StaffAuthorized(ctx context.Context, staffID domain.ID) (bool, string, error)
}

// RoomEvents 房间实时事件源
type RoomEvents interface {
	OnRoomStatusUpdate(fn func(domain.RoomStatusUpdate)) *realtime.Subscription
	OnRoomAvailabilityUpdate(fn func(domain.RoomAvailabilityUpdate)) *realtime.Subscription
}

// AdmissionEvents 住院实时事件源
type AdmissionEvents interface {
	OnAdmissionUpdate(fn func(domain.AdmissionUpdate)) *realtime.Subscription
	OnActiveAdmissionsUpdate(fn func(domain.ActiveAdmissionsUpdate)) *realtime.Subscription
}

// RoomLookup 只读房间查询（计费费率、按房型统计），不用于一致性校验
type RoomLookup interface {
	RoomByID(id domain.ID) (domain.Room, bool)
}

// Meta 各 store 共有的状态字段
type Meta struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Version uint64 `json:"version"`

	inflight int
}

func (m *Meta) started() {
	m.inflight++
	m.Loading = true
	m.Error = ""
}

func (m *Meta) settled() {
	if m.inflight > 0 {
		m.inflight--
	}
	m.Loading = m.inflight > 0
}

// ErrStoreClosed store 已关闭，结果被丢弃
var ErrStoreClosed = errors.New("store closed")

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// toValidationError 取第一个字段错误
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "max":
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		case "oneof":
			msg = "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
		case "gte":
			msg = fmt.Sprintf("must be greater than or equal to %s", fe.Param())
		default:
			msg = fmt.Sprintf("failed %q validation", fe.Tag())
		}
		return &domain.ValidationError{Field: fe.Field(), Message: msg}
	}
	return &domain.ValidationError{Field: "input", Message: err.Error()}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
