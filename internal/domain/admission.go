package domain

import "time"

// AdmissionStatus 住院状态
type AdmissionStatus string

const (
	AdmissionStatusActive     AdmissionStatus = "active"
	AdmissionStatusDischarged AdmissionStatus = "discharged"
)

// Admission 住院记录
// DischargeDate 为空 ⇔ Status == active；出院后为终态
type Admission struct {
	ID            ID              `json:"id"`
	PatientID     ID              `json:"patient_id"`
	RoomID        ID              `json:"room_id"`
	StaffID       ID              `json:"staff_id"`
	AdmissionDate time.Time       `json:"admission_date"`
	DischargeDate *time.Time      `json:"discharge_date,omitempty"`
	Status        AdmissionStatus `json:"status"`
	InvoiceID     *ID             `json:"invoice_id,omitempty"`

	// 后端详情接口附带的冗余字段（可能为空）
	RoomNumber     string   `json:"room_number,omitempty"`
	RoomType       RoomType `json:"room_type,omitempty"`
	PatientName    string   `json:"patient_name,omitempty"`
	StaffName      string   `json:"staff_name,omitempty"`
	DailyRateCents int64    `json:"daily_rate_cents,omitempty"`
}

// IsActive 是否在院
func (a Admission) IsActive() bool {
	return a.Status == AdmissionStatusActive
}

// DurationHours 住院时长（小时），未出院返回 0
func (a Admission) DurationHours() float64 {
	if a.DischargeDate == nil {
		return 0
	}
	return a.DischargeDate.Sub(a.AdmissionDate).Hours()
}

// AdmissionFilters 住院记录查询过滤条件
type AdmissionFilters struct {
	Status     AdmissionStatus `json:"status,omitempty"`
	PatientID  ID              `json:"patient_id,omitempty"`
	RoomID     ID              `json:"room_id,omitempty"`
	ActiveOnly bool            `json:"active_only"`
}

// AdmissionInput 办理入院的请求体
type AdmissionInput struct {
	PatientID     ID        `json:"patient_id" validate:"required"`
	RoomID        ID        `json:"room_id" validate:"required"`
	StaffID       ID        `json:"staff_id" validate:"required"`
	AdmissionDate time.Time `json:"admission_date"`
}

// DischargeInput 办理出院的输入
// AdditionalChargesCents 仅用于本地计费，不发送给后端
type DischargeInput struct {
	DischargeDate          time.Time `json:"discharge_date"`
	DischargeReason        string    `json:"discharge_reason,omitempty" validate:"omitempty,oneof=recovery transfer patient_request medical_necessity other"`
	DischargeNotes         string    `json:"discharge_notes,omitempty" validate:"max=500"`
	AdditionalChargesCents int64     `json:"additional_charges_cents,omitempty" validate:"gte=0"`
}

// Invoice 出院时后端生成的发票摘要
type Invoice struct {
	ID               ID     `json:"id"`
	PatientID        ID     `json:"patient_id,omitempty"`
	TotalAmountCents int64  `json:"total_amount_cents,omitempty"`
	Status           string `json:"status,omitempty"`
}

// ServerBillingSummary 后端返回的计费摘要
type ServerBillingSummary struct {
	DailyRateCents    int64   `json:"daily_rate_cents"`
	DaysStayed        float64 `json:"days_stayed"`
	TotalChargesCents int64   `json:"total_charges_cents"`
	IsSameDay         bool    `json:"is_same_day"`
}

// DischargeResult 出院结果
type DischargeResult struct {
	Admission     Admission             `json:"admission"`
	Billing       BillingSummary        `json:"billing"`
	Invoice       *Invoice              `json:"invoice,omitempty"`
	ServerBilling *ServerBillingSummary `json:"server_billing,omitempty"`
}

// AdmissionStatistics 住院统计（由当前集合推导）
type AdmissionStatistics struct {
	TotalAdmissions          int              `json:"total_admissions"`
	ActiveAdmissions         int              `json:"active_admissions"`
	DischargedAdmissions     int              `json:"discharged_admissions"`
	AverageLengthOfStayHours float64          `json:"average_length_of_stay_hours"`
	AverageLengthOfStayDays  float64          `json:"average_length_of_stay_days"`
	RecentAdmissions7Days    int              `json:"recent_admissions_7_days"`
	RoomTypeBreakdown        map[RoomType]int `json:"room_type_breakdown"`
	OccupancyRate            float64          `json:"occupancy_rate"`
}

// Patient 病人（外部目录，仅用于资格校验）
type Patient struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// Staff 员工（外部目录，仅用于授权校验）
type Staff struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	Status string `json:"status,omitempty"`
}
