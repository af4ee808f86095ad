package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"clinic-roomsync/internal/domain"

	"github.com/go-chi/chi/v5"
)

func (h *handler) listAdmissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.deps.Admissions.Snapshot()))
}

func (h *handler) listActiveAdmissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.deps.Admissions.Snapshot().ActiveAdmissions))
}

func (h *handler) admissionStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.deps.Admissions.Statistics()))
}

func (h *handler) serverAdmissionStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Admissions.FetchServerStatistics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(stats))
}

func (h *handler) getAdmission(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	adm, ok := h.deps.Admissions.AdmissionByID(id)
	if !ok {
		h.writeError(w, r, fmt.Errorf("admission %s: %w", id, domain.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, Ok(adm))
}

// patientAdmissions 病人的住院历史，直接查询后端
func (h *handler) patientAdmissions(w http.ResponseWriter, r *http.Request) {
	admissions, err := h.deps.Admissions.PatientAdmissions(r.Context(), domain.ID(chi.URLParam(r, "patientID")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(admissions))
}

func (h *handler) createAdmission(w http.ResponseWriter, r *http.Request) {
	var input domain.AdmissionInput
	if err := readBodyJSON(r, maxBodyBytes, &input); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	adm, err := h.deps.Admissions.CreateAdmission(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(adm))
}

func (h *handler) dischargePatient(w http.ResponseWriter, r *http.Request) {
	var input domain.DischargeInput
	if err := readBodyJSON(r, maxBodyBytes, &input); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	result, err := h.deps.Admissions.DischargePatient(r.Context(), idParam(r), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// billingPreviewRequest admission_id 存在时按该记录计费，否则使用显式给出的入院时间与费率
type billingPreviewRequest struct {
	AdmissionID            domain.ID `json:"admission_id"`
	AdmissionDate          time.Time `json:"admission_date"`
	DischargeDate          time.Time `json:"discharge_date"`
	DailyRateCents         *int64    `json:"daily_rate_cents"`
	AdditionalChargesCents int64     `json:"additional_charges_cents"`
}

func (h *handler) previewBilling(w http.ResponseWriter, r *http.Request) {
	var req billingPreviewRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}

	if !req.AdmissionID.IsZero() {
		summary, err := h.deps.Admissions.PreviewBilling(req.AdmissionID, req.DischargeDate, req.AdditionalChargesCents)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(summary))
		return
	}

	if req.AdmissionDate.IsZero() || req.DischargeDate.IsZero() {
		h.badRequest(w, "admission_id or both admission_date and discharge_date are required")
		return
	}
	rate := h.deps.Calculator.FallbackDailyRateCents()
	if req.DailyRateCents != nil {
		rate = *req.DailyRateCents
	}
	summary, err := h.deps.Calculator.Calculate(req.AdmissionDate, req.DischargeDate, rate, req.AdditionalChargesCents)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}
