package domain

// BillingSummary 出院计费摘要（派生数据，本服务不持久化）
// TotalChargesCents == BaseChargesCents + AdditionalChargesCents + TaxesCents
type BillingSummary struct {
	DurationHours          float64 `json:"duration_hours"`
	DaysBilled             int64   `json:"days_billed"` // 按小时折算时为 0
	Prorated               bool    `json:"prorated"`    // 不足 24 小时按小时折算
	DailyRateCents         int64   `json:"daily_rate_cents"`
	BaseChargesCents       int64   `json:"base_charges_cents"`
	AdditionalChargesCents int64   `json:"additional_charges_cents"`
	TaxesCents             int64   `json:"taxes_cents"`
	TotalChargesCents      int64   `json:"total_charges_cents"`
}
