package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinic-roomsync/internal/api"
	"clinic-roomsync/internal/billing"
	"clinic-roomsync/internal/domain"
	"clinic-roomsync/internal/realtime"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AdmissionState 住院 store 状态
type AdmissionState struct {
	Meta
	Admissions       []domain.Admission `json:"admissions"`
	ActiveAdmissions []domain.Admission `json:"active_admissions"`
	Selected         *domain.Admission  `json:"selected_admission,omitempty"`
}

func (s AdmissionState) clone() AdmissionState {
	out := s
	out.Admissions = append([]domain.Admission{}, s.Admissions...)
	out.ActiveAdmissions = append([]domain.Admission{}, s.ActiveAdmissions...)
	if s.Selected != nil {
		sel := *s.Selected
		out.Selected = &sel
	}
	return out
}

type admissionAction interface {
	apply(st *AdmissionState)
	name() string
}

type admissionRequestStarted struct{}

func (admissionRequestStarted) name() string              { return "request_started" }
func (admissionRequestStarted) apply(st *AdmissionState) { st.started() }

type admissionRequestDone struct{}

func (admissionRequestDone) name() string              { return "request_done" }
func (admissionRequestDone) apply(st *AdmissionState) { st.settled() }

type admissionRequestFailed struct{ message string }

func (admissionRequestFailed) name() string { return "request_failed" }
func (a admissionRequestFailed) apply(st *AdmissionState) {
	st.settled()
	st.Error = a.message
}

type admissionErrorRecorded struct{ message string }

func (admissionErrorRecorded) name() string                { return "error_recorded" }
func (a admissionErrorRecorded) apply(st *AdmissionState) { st.Error = a.message }

type admissionErrorCleared struct{}

func (admissionErrorCleared) name() string              { return "error_cleared" }
func (admissionErrorCleared) apply(st *AdmissionState) { st.Error = "" }

type admissionsLoaded struct{ admissions []domain.Admission }

func (admissionsLoaded) name() string { return "admissions_loaded" }
func (a admissionsLoaded) apply(st *AdmissionState) {
	st.settled()
	st.Admissions = append([]domain.Admission{}, a.admissions...)
}

type activeAdmissionsLoaded struct {
	admissions []domain.Admission
	request    bool
}

func (activeAdmissionsLoaded) name() string { return "active_admissions_loaded" }
func (a activeAdmissionsLoaded) apply(st *AdmissionState) {
	if a.request {
		st.settled()
	}
	st.ActiveAdmissions = append([]domain.Admission{}, a.admissions...)
}

// admissionCreated 新记录插入两个视图的头部（已存在则替换）
type admissionCreated struct{ admission domain.Admission }

func (admissionCreated) name() string { return "admission_created" }
func (a admissionCreated) apply(st *AdmissionState) {
	st.settled()
	st.Admissions = upsertFront(st.Admissions, a.admission)
	if a.admission.IsActive() {
		st.ActiveAdmissions = upsertFront(st.ActiveAdmissions, a.admission)
	}
}

// admissionDischarged 出院响应替换本地记录并移出在院视图
type admissionDischarged struct{ admission domain.Admission }

func (admissionDischarged) name() string { return "admission_discharged" }
func (a admissionDischarged) apply(st *AdmissionState) {
	st.settled()
	st.Admissions = upsertFront(st.Admissions, a.admission)
	st.ActiveAdmissions = removeAdmission(st.ActiveAdmissions, a.admission.ID)
	if st.Selected != nil && st.Selected.ID == a.admission.ID {
		adm := a.admission
		st.Selected = &adm
	}
}

type admissionSelected struct {
	admission *domain.Admission
	request   bool
}

func (admissionSelected) name() string { return "admission_selected" }
func (a admissionSelected) apply(st *AdmissionState) {
	if a.request {
		st.settled()
	}
	st.Selected = a.admission
}

// admissionPatched admission_update 的局部更新：只改状态与出院事实，已出院记录不会被重新激活
type admissionPatched struct{ update domain.AdmissionUpdate }

func (admissionPatched) name() string { return "admission_patched" }
func (a admissionPatched) apply(st *AdmissionState) {
	u := a.update
	var record *domain.Admission

	if i := indexAdmission(st.Admissions, u.AdmissionID); i >= 0 {
		if !patchAdmission(&st.Admissions[i], u) {
			return
		}
		rec := st.Admissions[i]
		record = &rec
	} else if u.AdmissionData != nil {
		rec := *u.AdmissionData
		if rec.ID.IsZero() {
			rec.ID = u.AdmissionID
		}
		if u.Status != "" {
			rec.Status = u.Status
		}
		st.Admissions = append([]domain.Admission{rec}, st.Admissions...)
		record = &rec
	}

	j := indexAdmission(st.ActiveAdmissions, u.AdmissionID)
	switch u.Status {
	case domain.AdmissionStatusDischarged:
		if j >= 0 {
			st.ActiveAdmissions = removeAdmission(st.ActiveAdmissions, u.AdmissionID)
		}
	case domain.AdmissionStatusActive:
		if j >= 0 {
			patchAdmission(&st.ActiveAdmissions[j], u)
		} else if record != nil {
			st.ActiveAdmissions = append([]domain.Admission{*record}, st.ActiveAdmissions...)
		}
	}

	if st.Selected != nil && st.Selected.ID == u.AdmissionID {
		sel := *st.Selected
		if patchAdmission(&sel, u) {
			st.Selected = &sel
		}
	}
}

type admissionsRestored struct{ snapshot AdmissionState }

func (admissionsRestored) name() string { return "restored" }
func (a admissionsRestored) apply(st *AdmissionState) {
	st.Admissions = a.snapshot.Admissions
	st.ActiveAdmissions = a.snapshot.ActiveAdmissions
}

// patchAdmission 应用状态与出院事实；返回 false 表示该更新会重新激活已出院记录，被忽略
func patchAdmission(rec *domain.Admission, u domain.AdmissionUpdate) bool {
	if rec.Status == domain.AdmissionStatusDischarged && u.Status == domain.AdmissionStatusActive {
		return false
	}
	if u.Status != "" {
		rec.Status = u.Status
	}
	if u.AdmissionData != nil {
		if u.AdmissionData.DischargeDate != nil {
			d := *u.AdmissionData.DischargeDate
			rec.DischargeDate = &d
		}
		if u.AdmissionData.InvoiceID != nil {
			id := *u.AdmissionData.InvoiceID
			rec.InvoiceID = &id
		}
	}
	return true
}

func indexAdmission(admissions []domain.Admission, id domain.ID) int {
	for i := range admissions {
		if admissions[i].ID == id {
			return i
		}
	}
	return -1
}

func upsertFront(admissions []domain.Admission, adm domain.Admission) []domain.Admission {
	if i := indexAdmission(admissions, adm.ID); i >= 0 {
		admissions[i] = adm
		return admissions
	}
	return append([]domain.Admission{adm}, admissions...)
}

func removeAdmission(admissions []domain.Admission, id domain.ID) []domain.Admission {
	out := make([]domain.Admission, 0, len(admissions))
	for _, a := range admissions {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// AdmissionConfig 入院校验参数
type AdmissionConfig struct {
	MaxAdvance    time.Duration // 入院日期最多提前多久，默认 7 天
	PastTolerance time.Duration // 允许入院日期早于当前时间的误差，默认 0

	DischargeMaxAdvance time.Duration // 计划出院最多提前多久，默认 7 天
	DischargeMaxPast    time.Duration // 补录出院最多追溯多久，默认 30 天
}

// AdmissionOption 住院 store 选项
type AdmissionOption func(*AdmissionStore)

// WithClock 替换时钟
func WithClock(now func() time.Time) AdmissionOption {
	return func(s *AdmissionStore) { s.now = now }
}

// WithEligibility 入院前的资格校验
func WithEligibility(checker EligibilityChecker) AdmissionOption {
	return func(s *AdmissionStore) { s.eligibility = checker }
}

// WithRoomLookup 计费费率与房型统计使用的房间查询
func WithRoomLookup(rooms RoomLookup) AdmissionOption {
	return func(s *AdmissionStore) { s.rooms = rooms }
}

// AdmissionStore 住院集合的唯一写入者
// 不订阅房间事件，也不修改房间状态
type AdmissionStore struct {
	api         AdmissionAPI
	calc        *billing.Calculator
	cfg         AdmissionConfig
	eligibility EligibilityChecker
	rooms       RoomLookup
	validate    *validator.Validate
	now         func() time.Time
	logger      *zap.Logger

	mu     sync.Mutex
	state  AdmissionState
	closed bool
	subs   []*realtime.Subscription
}

// NewAdmissionStore 创建住院 store
func NewAdmissionStore(api AdmissionAPI, calc *billing.Calculator, cfg AdmissionConfig, logger *zap.Logger, opts ...AdmissionOption) *AdmissionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if calc == nil {
		calc = billing.NewCalculator(billing.DefaultConfig())
	}
	if cfg.MaxAdvance <= 0 {
		cfg.MaxAdvance = 7 * 24 * time.Hour
	}
	if cfg.DischargeMaxAdvance <= 0 {
		cfg.DischargeMaxAdvance = 7 * 24 * time.Hour
	}
	if cfg.DischargeMaxPast <= 0 {
		cfg.DischargeMaxPast = 30 * 24 * time.Hour
	}
	s := &AdmissionStore{
		api:      api,
		calc:     calc,
		cfg:      cfg,
		validate: newValidator(),
		now:      time.Now,
		logger:   logger.With(zap.String("store", "admissions")),
		state: AdmissionState{
			Admissions:       []domain.Admission{},
			ActiveAdmissions: []domain.Admission{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AdmissionStore) dispatch(a admissionAction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	a.apply(&s.state)
	s.state.Version++
	dispatchTotal.WithLabelValues("admissions", a.name()).Inc()
	return true
}

func (s *AdmissionStore) fail(op string, err error, started bool) error {
	actionErrorsTotal.WithLabelValues("admissions", op).Inc()
	s.logger.Warn("Admission store action failed", zap.String("op", op), zap.Error(err))
	if started {
		s.dispatch(admissionRequestFailed{message: domain.Message(err)})
	} else {
		s.dispatch(admissionErrorRecorded{message: domain.Message(err)})
	}
	return err
}

// Bind 订阅住院实时事件
func (s *AdmissionStore) Bind(events AdmissionEvents) {
	subs := []*realtime.Subscription{
		events.OnAdmissionUpdate(s.ApplyAdmissionUpdate),
		events.OnActiveAdmissionsUpdate(s.ApplyActiveAdmissionsUpdate),
	}
	s.mu.Lock()
	s.subs = append(s.subs, subs...)
	s.mu.Unlock()
}

// ApplyAdmissionUpdate 处理 admission_update
func (s *AdmissionStore) ApplyAdmissionUpdate(u domain.AdmissionUpdate) {
	if u.AdmissionID.IsZero() {
		s.logger.Warn("Ignoring admission update without admission_id")
		return
	}
	s.dispatch(admissionPatched{update: u})
}

// ApplyActiveAdmissionsUpdate 处理 active_admissions_update（在院视图快照）
func (s *AdmissionStore) ApplyActiveAdmissionsUpdate(u domain.ActiveAdmissionsUpdate) {
	s.dispatch(activeAdmissionsLoaded{admissions: u.Admissions})
}

// FetchAdmissions 拉取住院记录并整体替换
func (s *AdmissionStore) FetchAdmissions(ctx context.Context, filters domain.AdmissionFilters) ([]domain.Admission, error) {
	s.dispatch(admissionRequestStarted{})
	admissions, err := s.api.ListAdmissions(ctx, filters)
	if err != nil {
		return nil, s.fail("fetch_admissions", err, true)
	}
	if !s.dispatch(admissionsLoaded{admissions: admissions}) {
		return nil, ErrStoreClosed
	}
	return admissions, nil
}

// FetchActiveAdmissions 拉取在院列表并整体替换在院视图
func (s *AdmissionStore) FetchActiveAdmissions(ctx context.Context) ([]domain.Admission, error) {
	s.dispatch(admissionRequestStarted{})
	admissions, err := s.api.ListActiveAdmissions(ctx)
	if err != nil {
		return nil, s.fail("fetch_active_admissions", err, true)
	}
	if !s.dispatch(activeAdmissionsLoaded{admissions: admissions, request: true}) {
		return nil, ErrStoreClosed
	}
	return admissions, nil
}

// GetAdmission 获取单条记录并设为选中
func (s *AdmissionStore) GetAdmission(ctx context.Context, id domain.ID) (domain.Admission, error) {
	s.dispatch(admissionRequestStarted{})
	adm, err := s.api.GetAdmission(ctx, id)
	if err != nil {
		return domain.Admission{}, s.fail("get_admission", err, true)
	}
	if !s.dispatch(admissionSelected{admission: &adm, request: true}) {
		return domain.Admission{}, ErrStoreClosed
	}
	return adm, nil
}

// PatientAdmissions 查询病人的住院记录，不修改集合
func (s *AdmissionStore) PatientAdmissions(ctx context.Context, patientID domain.ID) ([]domain.Admission, error) {
	s.dispatch(admissionRequestStarted{})
	admissions, err := s.api.PatientAdmissions(ctx, patientID)
	if err != nil {
		return nil, s.fail("patient_admissions", err, true)
	}
	s.dispatch(admissionRequestDone{})
	return admissions, nil
}

// FetchServerStatistics 后端统计原样返回
func (s *AdmissionStore) FetchServerStatistics(ctx context.Context) (api.ServerStatistics, error) {
	s.dispatch(admissionRequestStarted{})
	stats, err := s.api.ActiveAdmissionStatistics(ctx)
	if err != nil {
		return nil, s.fail("fetch_server_statistics", err, true)
	}
	s.dispatch(admissionRequestDone{})
	return stats, nil
}

// CreateAdmission 办理入院
// 必填字段、入院日期窗口、房间/病人/员工资格全部通过后才发出创建请求
func (s *AdmissionStore) CreateAdmission(ctx context.Context, input domain.AdmissionInput) (domain.Admission, error) {
	s.dispatch(admissionErrorCleared{})
	if err := s.validateAdmission(ctx, input); err != nil {
		return domain.Admission{}, s.fail("create_admission", err, false)
	}

	s.dispatch(admissionRequestStarted{})
	adm, err := s.api.CreateAdmission(ctx, input)
	if err != nil {
		return domain.Admission{}, s.fail("create_admission", err, true)
	}
	if adm.Status == "" {
		adm.Status = domain.AdmissionStatusActive
	}
	if !s.dispatch(admissionCreated{admission: adm}) {
		return domain.Admission{}, ErrStoreClosed
	}

	s.logger.Info("Admission created",
		zap.String("admission_id", adm.ID.String()),
		zap.String("patient_id", adm.PatientID.String()),
		zap.String("room_id", adm.RoomID.String()),
	)
	return adm, nil
}

func (s *AdmissionStore) validateAdmission(ctx context.Context, input domain.AdmissionInput) error {
	if err := s.validate.Struct(input); err != nil {
		return toValidationError(err)
	}

	now := s.now()
	switch {
	case input.AdmissionDate.IsZero():
		return &domain.ValidationError{Field: "admission_date", Message: "is required"}
	case input.AdmissionDate.Before(now.Add(-s.cfg.PastTolerance)):
		return &domain.ValidationError{Field: "admission_date", Message: "cannot be in the past"}
	case input.AdmissionDate.After(now.Add(s.cfg.MaxAdvance)):
		return &domain.ValidationError{
			Field:   "admission_date",
			Message: fmt.Sprintf("cannot be more than %d days in the future", int(s.cfg.MaxAdvance/(24*time.Hour))),
		}
	}

	if s.eligibility == nil {
		return nil
	}
	checks := []struct {
		field string
		check func() (bool, string, error)
	}{
		{"room_id", func() (bool, string, error) { return s.eligibility.RoomAvailable(ctx, input.RoomID) }},
		{"patient_id", func() (bool, string, error) { return s.eligibility.PatientEligible(ctx, input.PatientID) }},
		{"staff_id", func() (bool, string, error) { return s.eligibility.StaffAuthorized(ctx, input.StaffID) }},
	}
	for _, c := range checks {
		ok, reason, err := c.check()
		if err != nil {
			return fmt.Errorf("eligibility check %s: %w", c.field, err)
		}
		if !ok {
			return &domain.ValidationError{Field: c.field, Message: reason}
		}
	}
	return nil
}

// DischargePatient 办理出院
// 记录必须在院；先本地计费，计费失败不发出请求；成功后替换本地记录并移出在院视图
func (s *AdmissionStore) DischargePatient(ctx context.Context, id domain.ID, input domain.DischargeInput) (domain.DischargeResult, error) {
	s.dispatch(admissionErrorCleared{})

	adm, ok := s.lookup(id)
	if !ok {
		return domain.DischargeResult{}, s.fail("discharge_patient", fmt.Errorf("admission %s: %w", id, domain.ErrNotFound), false)
	}
	if !adm.IsActive() {
		return domain.DischargeResult{}, s.fail("discharge_patient", &domain.InvalidStateError{
			Entity: "admission",
			ID:     id,
			State:  string(adm.Status),
			Op:     "discharge",
		}, false)
	}
	if err := s.validateDischarge(input); err != nil {
		return domain.DischargeResult{}, s.fail("discharge_patient", err, false)
	}

	dischargeDate := input.DischargeDate
	if dischargeDate.IsZero() {
		dischargeDate = s.now()
	}

	rate := s.dailyRate(adm)
	summary, err := s.calc.Calculate(adm.AdmissionDate, dischargeDate, rate, input.AdditionalChargesCents)
	if err != nil {
		return domain.DischargeResult{}, s.fail("discharge_patient", err, false)
	}

	s.dispatch(admissionRequestStarted{})
	resp, err := s.api.DischargeAdmission(ctx, id, api.DischargeRequest{
		DischargeDate:   dischargeDate,
		DischargeReason: input.DischargeReason,
		DischargeNotes:  input.DischargeNotes,
	})
	if err != nil {
		return domain.DischargeResult{}, s.fail("discharge_patient", err, true)
	}

	discharged := resp.Admission
	if discharged.ID.IsZero() {
		discharged.ID = id
	}
	if discharged.Status == "" {
		discharged.Status = domain.AdmissionStatusDischarged
	}
	if discharged.DischargeDate == nil {
		discharged.DischargeDate = &dischargeDate
	}
	if !s.dispatch(admissionDischarged{admission: discharged}) {
		return domain.DischargeResult{}, ErrStoreClosed
	}

	s.logger.Info("Patient discharged",
		zap.String("admission_id", id.String()),
		zap.Int64("daily_rate_cents", rate),
		zap.Int64("total_charges_cents", summary.TotalChargesCents),
	)
	return domain.DischargeResult{
		Admission:     discharged,
		Billing:       summary,
		Invoice:       resp.Invoice,
		ServerBilling: resp.BillingSummary,
	}, nil
}

// validateDischarge 字段校验与出院日期窗口 [now-DischargeMaxPast, now+DischargeMaxAdvance]，零值表示当前时间
func (s *AdmissionStore) validateDischarge(input domain.DischargeInput) error {
	if err := s.validate.Struct(input); err != nil {
		return toValidationError(err)
	}
	if input.DischargeDate.IsZero() {
		return nil
	}
	now := s.now()
	switch {
	case input.DischargeDate.After(now.Add(s.cfg.DischargeMaxAdvance)):
		return &domain.ValidationError{
			Field:   "discharge_date",
			Message: fmt.Sprintf("cannot be more than %d days in the future", int(s.cfg.DischargeMaxAdvance/(24*time.Hour))),
		}
	case input.DischargeDate.Before(now.Add(-s.cfg.DischargeMaxPast)):
		return &domain.ValidationError{
			Field:   "discharge_date",
			Message: fmt.Sprintf("cannot be more than %d days in the past", int(s.cfg.DischargeMaxPast/(24*time.Hour))),
		}
	}
	return nil
}

// PreviewBilling 按当前记录预估出院费用，不发出请求
func (s *AdmissionStore) PreviewBilling(id domain.ID, dischargeDate time.Time, additionalChargesCents int64) (domain.BillingSummary, error) {
	adm, ok := s.lookup(id)
	if !ok {
		return domain.BillingSummary{}, fmt.Errorf("admission %s: %w", id, domain.ErrNotFound)
	}
	if dischargeDate.IsZero() {
		dischargeDate = s.now()
	}
	return s.calc.Calculate(adm.AdmissionDate, dischargeDate, s.dailyRate(adm), additionalChargesCents)
}

// dailyRate 费率优先级：记录自带 → 房间查询 → 配置的缺省费率
func (s *AdmissionStore) dailyRate(adm domain.Admission) int64 {
	if adm.DailyRateCents > 0 {
		return adm.DailyRateCents
	}
	if s.rooms != nil {
		if room, ok := s.rooms.RoomByID(adm.RoomID); ok && room.DailyRateCents > 0 {
			return room.DailyRateCents
		}
	}
	s.logger.Warn("Room rate unavailable, using fallback daily rate",
		zap.String("admission_id", adm.ID.String()),
		zap.String("room_id", adm.RoomID.String()),
		zap.Int64("fallback_daily_rate_cents", s.calc.FallbackDailyRateCents()),
	)
	return s.calc.FallbackDailyRateCents()
}

func (s *AdmissionStore) lookup(id domain.ID) (domain.Admission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexAdmission(s.state.Admissions, id); i >= 0 {
		return s.state.Admissions[i], true
	}
	if i := indexAdmission(s.state.ActiveAdmissions, id); i >= 0 {
		return s.state.ActiveAdmissions[i], true
	}
	return domain.Admission{}, false
}

// AdmissionByID 本地查找记录
func (s *AdmissionStore) AdmissionByID(id domain.ID) (domain.Admission, bool) {
	return s.lookup(id)
}

// Select 设置选中记录（nil 清除）
func (s *AdmissionStore) Select(adm *domain.Admission) {
	if adm != nil {
		cp := *adm
		adm = &cp
	}
	s.dispatch(admissionSelected{admission: adm})
}

// ClearError 清除错误
func (s *AdmissionStore) ClearError() {
	s.dispatch(admissionErrorCleared{})
}

// Snapshot 当前状态副本
func (s *AdmissionStore) Snapshot() AdmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Statistics 由当前集合推导的住院统计
func (s *AdmissionStore) Statistics() domain.AdmissionStatistics {
	s.mu.Lock()
	admissions := append([]domain.Admission(nil), s.state.Admissions...)
	active := append([]domain.Admission(nil), s.state.ActiveAdmissions...)
	s.mu.Unlock()

	// 房间查询会获取房间 store 的锁，不能在持有本 store 锁时调用
	return AdmissionStatistics(admissions, active, s.rooms, s.now())
}

// Restore 预热：仅在 store 从未写入时应用快照
func (s *AdmissionStore) Restore(snapshot AdmissionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state.Version != 0 {
		return false
	}
	snap := snapshot.clone()
	a := admissionsRestored{snapshot: snap}
	a.apply(&s.state)
	s.state.Version++
	dispatchTotal.WithLabelValues("admissions", a.name()).Inc()
	s.logger.Info("Admission store restored from snapshot",
		zap.Int("admissions", len(snap.Admissions)),
		zap.Int("active_admissions", len(snap.ActiveAdmissions)),
	)
	return true
}

// Close 取消事件订阅；之后返回的请求结果不再写入
func (s *AdmissionStore) Close() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
