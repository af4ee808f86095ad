package store

import (
	"context"
	"sync"

	"clinic-roomsync/internal/api"
	"clinic-roomsync/internal/domain"
)

type fakeRoomAPI struct {
	mu    sync.Mutex
	calls []string

	rooms        []domain.Room
	available    []domain.Room
	room         domain.Room
	availability domain.RoomAvailability
	err          error

	// 为 nil 时 UpdateRoomStatus 返回 room 并套用请求的状态
	statusResult func(id domain.ID, status domain.RoomStatus) domain.Room
	// 请求返回前的钩子，用于模拟请求期间发生的事情
	beforeReturn func()
}

func (f *fakeRoomAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
}

func (f *fakeRoomAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRoomAPI) ListRooms(ctx context.Context, filters domain.RoomFilters) ([]domain.Room, error) {
	f.record("list_rooms")
	return f.rooms, f.err
}

func (f *fakeRoomAPI) GetRoom(ctx context.Context, id domain.ID) (domain.Room, error) {
	f.record("get_room")
	return f.room, f.err
}

func (f *fakeRoomAPI) CreateRoom(ctx context.Context, input domain.RoomInput) (domain.Room, error) {
	f.record("create_room")
	return f.room, f.err
}

func (f *fakeRoomAPI) UpdateRoom(ctx context.Context, id domain.ID, input domain.RoomInput) (domain.Room, error) {
	f.record("update_room")
	return f.room, f.err
}

func (f *fakeRoomAPI) UpdateRoomStatus(ctx context.Context, id domain.ID, status domain.RoomStatus) (domain.Room, error) {
	f.record("update_room_status")
	if f.err != nil {
		return domain.Room{}, f.err
	}
	if f.statusResult != nil {
		return f.statusResult(id, status), nil
	}
	room := f.room
	room.ID = id
	room.Status = status
	return room, nil
}

func (f *fakeRoomAPI) ListAvailableRooms(ctx context.Context, roomType domain.RoomType) ([]domain.Room, error) {
	f.record("list_available_rooms")
	return f.available, f.err
}

func (f *fakeRoomAPI) CheckRoomAvailability(ctx context.Context, id domain.ID) (domain.RoomAvailability, error) {
	f.record("check_room_availability")
	return f.availability, f.err
}

type fakeAdmissionAPI struct {
	mu    sync.Mutex
	calls []string

	admissions []domain.Admission
	active     []domain.Admission
	admission  domain.Admission
	discharge  api.DischargeResponse
	stats      api.ServerStatistics
	err        error

	lastDischarge api.DischargeRequest
	beforeReturn  func()
}

func (f *fakeAdmissionAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
}

func (f *fakeAdmissionAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdmissionAPI) ListAdmissions(ctx context.Context, filters domain.AdmissionFilters) ([]domain.Admission, error) {
	f.record("list_admissions")
	return f.admissions, f.err
}

func (f *fakeAdmissionAPI) GetAdmission(ctx context.Context, id domain.ID) (domain.Admission, error) {
	f.record("get_admission")
	return f.admission, f.err
}

func (f *fakeAdmissionAPI) CreateAdmission(ctx context.Context, input domain.AdmissionInput) (domain.Admission, error) {
	f.record("create_admission")
	return f.admission, f.err
}

func (f *fakeAdmissionAPI) DischargeAdmission(ctx context.Context, id domain.ID, req api.DischargeRequest) (api.DischargeResponse, error) {
	f.record("discharge_admission")
	f.mu.Lock()
	f.lastDischarge = req
	f.mu.Unlock()
	return f.discharge, f.err
}

func (f *fakeAdmissionAPI) ListActiveAdmissions(ctx context.Context) ([]domain.Admission, error) {
	f.record("list_active_admissions")
	return f.active, f.err
}

func (f *fakeAdmissionAPI) ActiveAdmissionStatistics(ctx context.Context) (api.ServerStatistics, error) {
	f.record("active_admission_statistics")
	return f.stats, f.err
}

func (f *fakeAdmissionAPI) PatientAdmissions(ctx context.Context, patientID domain.ID) ([]domain.Admission, error) {
	f.record("patient_admissions")
	return f.admissions, f.err
}

// fakeEligibility 按字段给出拒绝原因，记录调用顺序
type fakeEligibility struct {
	roomReason    string
	patientReason string
	staffReason   string
	err           error
	calls         []string
}

func (f *fakeEligibility) RoomAvailable(ctx context.Context, roomID domain.ID) (bool, string, error) {
	f.calls = append(f.calls, "room")
	return f.roomReason == "", f.roomReason, f.err
}

func (f *fakeEligibility) PatientEligible(ctx context.Context, patientID domain.ID) (bool, string, error) {
	f.calls = append(f.calls, "patient")
	return f.patientReason == "", f.patientReason, nil
}

func (f *fakeEligibility) StaffAuthorized(ctx context.Context, staffID domain.ID) (bool, string, error) {
	f.calls = append(f.calls, "staff")
	return f.staffReason == "", f.staffReason, nil
}

type mapRooms map[domain.ID]domain.Room

func (m mapRooms) RoomByID(id domain.ID) (domain.Room, bool) {
	r, ok := m[id]
	return r, ok
}
