package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clinic-roomsync/internal/api"
	"clinic-roomsync/internal/consumer"
	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/realtime"
	"clinic-roomsync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct {
	state        store.RoomState
	lastFilters  *domain.RoomFilters
	lastStatus   domain.RoomStatus
	err          error
	availability domain.RoomAvailability
}

func (f *fakeRooms) Snapshot() store.RoomState { return f.state }

func (f *fakeRooms) Statistics() domain.RoomStatistics {
	return store.RoomStatistics(f.state.Rooms)
}

func (f *fakeRooms) RoomByID(id domain.ID) (domain.Room, bool) {
	for _, r := range f.state.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Room{}, false
}

func (f *fakeRooms) FetchRooms(ctx context.Context, filters domain.RoomFilters) ([]domain.Room, error) {
	f.lastFilters = &filters
	return f.state.Rooms, f.err
}

func (f *fakeRooms) UpdateRoomStatus(ctx context.Context, id domain.ID, status domain.RoomStatus) (domain.Room, error) {
	f.lastStatus = status
	if f.err != nil {
		return domain.Room{}, f.err
	}
	return domain.Room{ID: id, Status: status}, nil
}

func (f *fakeRooms) ScheduleMaintenance(ctx context.Context, id domain.ID) (domain.Room, error) {
	return domain.Room{ID: id, Status: domain.RoomStatusMaintenance}, f.err
}

func (f *fakeRooms) CompleteMaintenance(ctx context.Context, id domain.ID) (domain.Room, error) {
	return domain.Room{ID: id, Status: domain.RoomStatusAvailable}, f.err
}

func (f *fakeRooms) CheckRoomAvailability(ctx context.Context, id domain.ID) (domain.RoomAvailability, error) {
	return f.availability, f.err
}

type fakeAdmissions struct {
	state       store.AdmissionState
	lastPatient domain.ID
	err         error
	created     domain.Admission
	discharge   domain.DischargeResult
	preview     domain.BillingSummary
}

func (f *fakeAdmissions) Snapshot() store.AdmissionState { return f.state }

func (f *fakeAdmissions) Statistics() domain.AdmissionStatistics {
	return domain.AdmissionStatistics{TotalAdmissions: len(f.state.Admissions)}
}

func (f *fakeAdmissions) AdmissionByID(id domain.ID) (domain.Admission, bool) {
	for _, a := range f.state.Admissions {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Admission{}, false
}

func (f *fakeAdmissions) PatientAdmissions(ctx context.Context, patientID domain.ID) ([]domain.Admission, error) {
	f.lastPatient = patientID
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Admission
	for _, a := range f.state.Admissions {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAdmissions) CreateAdmission(ctx context.Context, input domain.AdmissionInput) (domain.Admission, error) {
	return f.created, f.err
}

func (f *fakeAdmissions) DischargePatient(ctx context.Context, id domain.ID, input domain.DischargeInput) (domain.DischargeResult, error) {
	return f.discharge, f.err
}

func (f *fakeAdmissions) PreviewBilling(id domain.ID, dischargeDate time.Time, additionalChargesCents int64) (domain.BillingSummary, error) {
	return f.preview, f.err
}

func (f *fakeAdmissions) FetchServerStatistics(ctx context.Context) (api.ServerStatistics, error) {
	return api.ServerStatistics{}, f.err
}

type fakeRealtimeStatus struct{ state realtime.ConnectionState }

func (f fakeRealtimeStatus) State() realtime.ConnectionState { return f.state }

type fakeJournalStatus struct{ published int64 }

func (f fakeJournalStatus) Metrics() consumer.Metrics {
	return consumer.Metrics{EventsPublished: f.published}
}

func newTestRouter(rooms *fakeRooms, admissions *fakeAdmissions) http.Handler {
	return NewRouter(Deps{
		Rooms:      rooms,
		Admissions: admissions,
		Realtime:   fakeRealtimeStatus{state: realtime.ConnectionState{Status: realtime.StatusConnected}},
		Journal:    fakeJournalStatus{published: 3},
	}, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Result[json.RawMessage]) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	var res Result[json.RawMessage]
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func TestRouter_HealthAndRealtime(t *testing.T) {
	h := newTestRouter(&fakeRooms{}, &fakeAdmissions{})

	rec, res := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Contains(t, string(res.Result), `"status":"connected"`)

	rec, res = do(t, h, http.MethodGet, "/api/v1/realtime", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(res.Result), `"journal"`)
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestRouter(&fakeRooms{}, &fakeAdmissions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Rooms(t *testing.T) {
	rooms := &fakeRooms{state: store.RoomState{Rooms: []domain.Room{
		{ID: "1", Status: domain.RoomStatusAvailable, Type: domain.RoomTypeICU},
		{ID: "2", Status: domain.RoomStatusOccupied, Type: domain.RoomTypeStandard},
	}}}
	h := newTestRouter(rooms, &fakeAdmissions{})

	rec, res := do(t, h, http.MethodGet, "/api/v1/rooms/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state store.RoomState
	require.NoError(t, json.Unmarshal(res.Result, &state))
	assert.Len(t, state.Rooms, 2)
	assert.Nil(t, rooms.lastFilters, "no refresh without the query flag")

	rec, _ = do(t, h, http.MethodGet, "/api/v1/rooms/?refresh=true&type=icu&available_only=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, rooms.lastFilters)
	assert.Equal(t, domain.RoomTypeICU, rooms.lastFilters.Type)
	assert.True(t, rooms.lastFilters.AvailableOnly)

	rec, res = do(t, h, http.MethodGet, "/api/v1/rooms/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(res.Result), `"occupied"`)

	rec, res = do(t, h, http.MethodGet, "/api/v1/rooms/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ResultError, res.Code)
	assert.Equal(t, "error", res.Type)

	rec, res = do(t, h, http.MethodGet, "/api/v1/rooms/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.RoomStatistics
	require.NoError(t, json.Unmarshal(res.Result, &stats))
	assert.Equal(t, 2, stats.TotalRooms)
}

func TestRouter_RoomStatusErrors(t *testing.T) {
	rooms := &fakeRooms{}
	h := newTestRouter(rooms, &fakeAdmissions{})

	rec, res := do(t, h, http.MethodPatch, "/api/v1/rooms/1/status", `{"status":"occupied"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RoomStatusOccupied, rooms.lastStatus)
	assert.Equal(t, ResultSuccess, res.Code)

	rec, _ = do(t, h, http.MethodPatch, "/api/v1/rooms/1/status", `{"status":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rooms.err = &domain.ValidationError{Field: "status", Message: "unknown room status"}
	rec, res = do(t, h, http.MethodPatch, "/api/v1/rooms/1/status", `{"status":"flooded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, res.Message, "unknown room status")

	rooms.err = &domain.InvalidStateError{Entity: "room", ID: "1", State: "occupied", Op: "schedule maintenance for"}
	rec, _ = do(t, h, http.MethodPost, "/api/v1/rooms/1/maintenance", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rooms.err = &domain.TransportError{Op: "connect"}
	rec, _ = do(t, h, http.MethodGet, "/api/v1/rooms/1/availability", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_AdmissionErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"upstream failure", &domain.APIError{StatusCode: http.StatusInternalServerError, Detail: "database offline"}, http.StatusBadGateway, "database offline"},
		{"state conflict", &domain.StateConflictError{Resource: "room 3"}, http.StatusConflict, "state conflict on room 3: refresh and retry"},
		{"not found", &domain.APIError{StatusCode: http.StatusNotFound, Detail: "no such admission"}, http.StatusNotFound, "no such admission"},
		{"store closed", store.ErrStoreClosed, http.StatusServiceUnavailable, store.ErrStoreClosed.Error()},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&fakeRooms{}, &fakeAdmissions{err: tt.err})

			rec, res := do(t, h, http.MethodPost, "/api/v1/admissions/", `{"patient_id":"p1"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, ResultError, res.Code)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestRouter_Admissions(t *testing.T) {
	admissions := &fakeAdmissions{
		state: store.AdmissionState{
			Admissions:       []domain.Admission{{ID: "5", Status: domain.AdmissionStatusActive}},
			ActiveAdmissions: []domain.Admission{{ID: "5", Status: domain.AdmissionStatusActive}},
		},
		created:   domain.Admission{ID: "6", Status: domain.AdmissionStatusActive},
		discharge: domain.DischargeResult{Admission: domain.Admission{ID: "5", Status: domain.AdmissionStatusDischarged}},
	}
	h := newTestRouter(&fakeRooms{}, admissions)

	rec, res := do(t, h, http.MethodPost, "/api/v1/admissions/", `{"patient_id":"p1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, string(res.Result), `"id":6`)

	rec, res = do(t, h, http.MethodGet, "/api/v1/admissions/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active []domain.Admission
	require.NoError(t, json.Unmarshal(res.Result, &active))
	assert.Len(t, active, 1)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/admissions/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/v1/admissions/404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, res = do(t, h, http.MethodPost, "/api/v1/admissions/5/discharge", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(res.Result), `"discharged"`)

	admissions.err = &domain.InvalidStateError{Entity: "admission", ID: "5", State: "discharged", Op: "discharge"}
	rec, res = do(t, h, http.MethodPost, "/api/v1/admissions/5/discharge", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, `cannot discharge admission 5 in state "discharged"`, res.Message)
}

func TestRouter_BillingPreview(t *testing.T) {
	admissions := &fakeAdmissions{preview: domain.BillingSummary{TotalChargesCents: 16275}}
	h := newTestRouter(&fakeRooms{}, admissions)

	decode := func(t *testing.T, res Result[json.RawMessage]) domain.BillingSummary {
		t.Helper()
		var summary domain.BillingSummary
		require.NoError(t, json.Unmarshal(res.Result, &summary))
		return summary
	}

	t.Run("by admission", func(t *testing.T) {
		rec, res := do(t, h, http.MethodPost, "/api/v1/billing/preview", `{"admission_id":"5"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(16275), decode(t, res).TotalChargesCents)
	})

	t.Run("explicit rate", func(t *testing.T) {
		body := `{"admission_date":"2026-03-01T00:00:00Z","discharge_date":"2026-03-03T06:00:00Z","daily_rate_cents":10000,"additional_charges_cents":500}`
		rec, res := do(t, h, http.MethodPost, "/api/v1/billing/preview", body)
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decode(t, res)
		assert.Equal(t, int64(3), summary.DaysBilled)
		assert.Equal(t, int64(30000), summary.BaseChargesCents)
		assert.Equal(t, int64(2593), summary.TaxesCents)
		assert.Equal(t, int64(33093), summary.TotalChargesCents)
	})

	t.Run("fallback rate", func(t *testing.T) {
		body := `{"admission_date":"2026-03-01T00:00:00Z","discharge_date":"2026-03-01T12:00:00Z"}`
		rec, res := do(t, h, http.MethodPost, "/api/v1/billing/preview", body)
		require.Equal(t, http.StatusOK, rec.Code)
		summary := decode(t, res)
		assert.True(t, summary.Prorated)
		assert.Equal(t, int64(7500), summary.BaseChargesCents)
		assert.Equal(t, int64(8138), summary.TotalChargesCents)
	})

	t.Run("missing dates", func(t *testing.T) {
		rec, res := do(t, h, http.MethodPost, "/api/v1/billing/preview", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ResultError, res.Code)
	})

	t.Run("inverted dates", func(t *testing.T) {
		body := `{"admission_date":"2026-03-02T00:00:00Z","discharge_date":"2026-03-01T00:00:00Z"}`
		rec, _ := do(t, h, http.MethodPost, "/api/v1/billing/preview", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("negative charges", func(t *testing.T) {
		body := `{"admission_date":"2026-03-01T00:00:00Z","discharge_date":"2026-03-02T00:00:00Z","additional_charges_cents":-1}`
		rec, _ := do(t, h, http.MethodPost, "/api/v1/billing/preview", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouter_PatientAdmissions(t *testing.T) {
	admissions := &fakeAdmissions{state: store.AdmissionState{Admissions: []domain.Admission{
		{ID: "1", PatientID: "p-1", Status: domain.AdmissionStatusDischarged},
		{ID: "2", PatientID: "p-2", Status: domain.AdmissionStatusActive},
		{ID: "3", PatientID: "p-1", Status: domain.AdmissionStatusActive},
	}}}
	h := newTestRouter(&fakeRooms{}, admissions)

	rec, res := do(t, h, http.MethodGet, "/api/v1/admissions/patient/p-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ID("p-1"), admissions.lastPatient)
	var history []domain.Admission
	require.NoError(t, json.Unmarshal(res.Result, &history))
	require.Len(t, history, 2)
	assert.Equal(t, domain.ID("3"), history[1].ID)

	admissions.err = &domain.APIError{StatusCode: http.StatusNotFound, Detail: "patient not found"}
	rec, res = do(t, h, http.MethodGet, "/api/v1/admissions/patient/p-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "patient not found", res.Message)
}
