package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinic-roomsync/internal/domain"
)

// GetPatient GET /patients/{id}
func (c *Client) GetPatient(ctx context.Context, id domain.ID) (domain.Patient, error) {
	var patient domain.Patient
	err := c.get(ctx, call{
		op:       "get_patient",
		resource: "patient " + id.String(),
		fallback: "Failed to fetch patient",
		path:     "/patients/" + id.String(),
	}, &patient)
	return patient, err
}

// ListStaff GET /auth/staff
func (c *Client) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	staff := []domain.Staff{}
	err := c.get(ctx, call{
		op:       "list_staff",
		resource: "staff",
		fallback: "Failed to fetch staff",
		path:     "/auth/staff",
	}, &staff)
	return staff, err
}

// DefaultAuthorizedRoles 可办理入院的员工角色
var DefaultAuthorizedRoles = []string{"admin", "billing_clerk", "doctor", "nurse", "receptionist"}

// Eligibility 提交时实时校验房间、病人、员工资格（不使用缓存列表）
type Eligibility struct {
	client *Client
	roles  map[string]bool
}

// NewEligibility 创建资格校验器，roles 为空时使用默认角色
func NewEligibility(client *Client, roles []string) *Eligibility {
	if len(roles) == 0 {
		roles = DefaultAuthorizedRoles
	}
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[strings.ToLower(strings.TrimSpace(r))] = true
	}
	return &Eligibility{client: client, roles: set}
}

// RoomAvailable 房间当前是否可入住
func (e *Eligibility) RoomAvailable(ctx context.Context, roomID domain.ID) (bool, string, error) {
	availability, err := e.client.CheckRoomAvailability(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, "room not found", nil
		}
		return false, "", err
	}
	if !availability.Available {
		if availability.Reason != "" {
			return false, availability.Reason, nil
		}
		return false, "room is not available", nil
	}
	return true, "", nil
}

// PatientEligible 病人存在、状态有效且没有在院记录
func (e *Eligibility) PatientEligible(ctx context.Context, patientID domain.ID) (bool, string, error) {
	patient, err := e.client.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, "patient not found", nil
		}
		return false, "", err
	}

	switch strings.ToLower(patient.Status) {
	case "", "active", "eligible":
	default:
		return false, fmt.Sprintf("patient is not eligible for admission (status: %s)", patient.Status), nil
	}

	admissions, err := e.client.PatientAdmissions(ctx, patientID)
	if err != nil {
		return false, "", err
	}
	for _, a := range admissions {
		if a.IsActive() {
			return false, "patient already has an active admission", nil
		}
	}
	return true, "", nil
}

// StaffAuthorized 员工存在、未停用且角色允许办理入院
func (e *Eligibility) StaffAuthorized(ctx context.Context, staffID domain.ID) (bool, string, error) {
	staff, err := e.client.ListStaff(ctx)
	if err != nil {
		return false, "", err
	}
	for _, s := range staff {
		if !strings.EqualFold(s.ID.String(), staffID.String()) {
			continue
		}
		if strings.EqualFold(s.Status, "inactive") {
			return false, "staff member is inactive", nil
		}
		if !e.roles[strings.ToLower(s.Role)] {
			return false, fmt.Sprintf("role %q is not authorized to admit patients", s.Role), nil
		}
		return true, "", nil
	}
	return false, "staff member not found", nil
}
