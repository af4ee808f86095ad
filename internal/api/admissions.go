package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clinic-roomsync/internal/domain"
)

// DischargeRequest POST /admissions/{id}/discharge 请求体
type DischargeRequest struct {
	DischargeDate   time.Time `json:"discharge_date"`
	DischargeReason string    `json:"discharge_reason,omitempty"`
	DischargeNotes  string    `json:"discharge_notes,omitempty"`
}

// DischargeResponse 出院响应
type DischargeResponse struct {
	Admission      domain.Admission             `json:"admission"`
	Invoice        *domain.Invoice              `json:"invoice,omitempty"`
	BillingSummary *domain.ServerBillingSummary `json:"billing_summary,omitempty"`
}

// ServerStatistics GET /admissions/active/statistics 原样返回
type ServerStatistics map[string]interface{}

func admissionPath(id domain.ID) string {
	return "/admissions/" + id.String()
}

// ListAdmissions GET /admissions
func (c *Client) ListAdmissions(ctx context.Context, filters domain.AdmissionFilters) ([]domain.Admission, error) {
	query := map[string]string{}
	if filters.Status != "" {
		query["status"] = string(filters.Status)
	}
	if !filters.PatientID.IsZero() {
		query["patient_id"] = filters.PatientID.String()
	}
	if !filters.RoomID.IsZero() {
		query["room_id"] = filters.RoomID.String()
	}
	if filters.ActiveOnly {
		query["active_only"] = strconv.FormatBool(true)
	}

	var raw json.RawMessage
	if err := c.get(ctx, call{
		op:       "list_admissions",
		resource: "admissions",
		fallback: "Failed to fetch admissions",
		path:     "/admissions/",
		query:    query,
	}, &raw); err != nil {
		return nil, err
	}

	admissions := []domain.Admission{}
	if err := decodeList(raw, "admissions", &admissions); err != nil {
		return nil, fmt.Errorf("decode admissions: %w", err)
	}
	return admissions, nil
}

// GetAdmission GET /admissions/{id}
func (c *Client) GetAdmission(ctx context.Context, id domain.ID) (domain.Admission, error) {
	var admission domain.Admission
	err := c.get(ctx, call{
		op:       "get_admission",
		resource: "admission " + id.String(),
		fallback: "Failed to fetch admission",
		path:     admissionPath(id),
	}, &admission)
	return admission, err
}

// CreateAdmission POST /admissions
func (c *Client) CreateAdmission(ctx context.Context, input domain.AdmissionInput) (domain.Admission, error) {
	var admission domain.Admission
	err := c.send(ctx, call{
		op:       "create_admission",
		resource: "room " + input.RoomID.String(),
		fallback: "Failed to create admission",
		method:   http.MethodPost,
		path:     "/admissions/",
		body:     input,
	}, &admission)
	return admission, err
}

// DischargeAdmission POST /admissions/{id}/discharge
func (c *Client) DischargeAdmission(ctx context.Context, id domain.ID, req DischargeRequest) (DischargeResponse, error) {
	var resp DischargeResponse
	err := c.send(ctx, call{
		op:       "discharge_admission",
		resource: "admission " + id.String(),
		fallback: "Failed to discharge patient",
		method:   http.MethodPost,
		path:     admissionPath(id) + "/discharge",
		body:     req,
	}, &resp)
	return resp, err
}

// ListActiveAdmissions GET /admissions/active/list
func (c *Client) ListActiveAdmissions(ctx context.Context) ([]domain.Admission, error) {
	var raw json.RawMessage
	if err := c.get(ctx, call{
		op:       "list_active_admissions",
		resource: "admissions",
		fallback: "Failed to fetch active admissions",
		path:     "/admissions/active/list",
	}, &raw); err != nil {
		return nil, err
	}

	admissions := []domain.Admission{}
	if err := decodeList(raw, "admissions", &admissions); err != nil {
		return nil, fmt.Errorf("decode active admissions: %w", err)
	}
	return admissions, nil
}

// ActiveAdmissionStatistics GET /admissions/active/statistics
func (c *Client) ActiveAdmissionStatistics(ctx context.Context) (ServerStatistics, error) {
	stats := ServerStatistics{}
	err := c.get(ctx, call{
		op:       "admission_statistics",
		resource: "admissions",
		fallback: "Failed to fetch admission statistics",
		path:     "/admissions/active/statistics",
	}, &stats)
	return stats, err
}

// PatientAdmissions GET /admissions/patient/{patientId}
func (c *Client) PatientAdmissions(ctx context.Context, patientID domain.ID) ([]domain.Admission, error) {
	var raw json.RawMessage
	if err := c.get(ctx, call{
		op:       "patient_admissions",
		resource: "patient " + patientID.String(),
		fallback: "Failed to fetch patient admissions",
		path:     "/admissions/patient/" + patientID.String(),
	}, &raw); err != nil {
		return nil, err
	}

	admissions := []domain.Admission{}
	if err := decodeList(raw, "admissions", &admissions); err != nil {
		return nil, fmt.Errorf("decode patient admissions: %w", err)
	}
	return admissions, nil
}
