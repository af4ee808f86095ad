package billing

import (
	"errors"
	"time"

	"clinic-roomsync/internal/domain"
)

const (
	msPerHour = int64(time.Hour / time.Millisecond)
	msPerDay  = 24 * msPerHour

	// basisPointsDenominator 1 bp = 0.01%
	basisPointsDenominator = int64(10000)
)

// ErrNegativeAmount 费率或附加费用为负
var ErrNegativeAmount = errors.New("billing amounts must not be negative")

// Config 计费参数
type Config struct {
	TaxRateBasisPoints     int64 // 850 = 8.5%
	FallbackDailyRateCents int64 // 房间费率缺失时的默认日费率
}

// DefaultConfig 默认计费参数
func DefaultConfig() Config {
	return Config{
		TaxRateBasisPoints:     850,
		FallbackDailyRateCents: 15000,
	}
}

// Calculator 出院计费引擎，纯函数，无可变状态
type Calculator struct {
	cfg Config
}

// NewCalculator 创建计费引擎
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// FallbackDailyRateCents 缺省日费率
func (c *Calculator) FallbackDailyRateCents() int64 {
	return c.cfg.FallbackDailyRateCents
}

// Calculate 由入院时间、出院时间、日费率计算计费摘要
//   - 不足 24 小时：按小时折算 round(日费率/24 × 小时数)
//   - 满 24 小时及以上：按天计费，不足一天按一天
//   - 税费 = round((基础 + 附加) × 税率)
//
// 全部使用整数分运算，四舍五入（half-up）
func (c *Calculator) Calculate(admissionDate, dischargeDate time.Time, dailyRateCents, additionalChargesCents int64) (domain.BillingSummary, error) {
	if !dischargeDate.After(admissionDate) {
		return domain.BillingSummary{}, &domain.InvalidDurationError{
			AdmissionDate: admissionDate,
			DischargeDate: dischargeDate,
		}
	}
	if dailyRateCents < 0 || additionalChargesCents < 0 {
		return domain.BillingSummary{}, ErrNegativeAmount
	}

	durationMs := dischargeDate.Sub(admissionDate).Milliseconds()

	summary := domain.BillingSummary{
		DurationHours:          float64(durationMs) / float64(msPerHour),
		DailyRateCents:         dailyRateCents,
		AdditionalChargesCents: additionalChargesCents,
	}

	if durationMs < msPerDay {
		summary.Prorated = true
		summary.BaseChargesCents = divRoundHalfUp(dailyRateCents*durationMs, msPerDay)
	} else {
		days := (durationMs + msPerDay - 1) / msPerDay
		summary.DaysBilled = days
		summary.BaseChargesCents = dailyRateCents * days
	}

	taxable := summary.BaseChargesCents + summary.AdditionalChargesCents
	summary.TaxesCents = divRoundHalfUp(taxable*c.cfg.TaxRateBasisPoints, basisPointsDenominator)
	summary.TotalChargesCents = summary.BaseChargesCents + summary.AdditionalChargesCents + summary.TaxesCents

	return summary, nil
}

// divRoundHalfUp 非负整数除法，四舍五入
func divRoundHalfUp(num, den int64) int64 {
	return (2*num + den) / (2 * den)
}
