package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is a caller's capability class.
type Role string

const (
	// RoleManager may read and update the state of its own hospital.
	RoleManager Role = "manager"
	// RoleStaff may read its own hospital's briefing, history and state.
	RoleStaff Role = "staff"
	// RoleAdmin may read every hospital and the aggregate status, but not
	// update hospital state.
	RoleAdmin Role = "admin"
	// RoleFeed is the external signal source; it may only push signals.
	RoleFeed Role = "feed"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleManager, RoleStaff, RoleAdmin, RoleFeed:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is a resolved caller.
type Principal struct {
	Role       Role   `json:"role"`
	HospitalID string `json:"hospital_id,omitempty"`
	Subject    string `json:"subject,omitempty"`
}

// valid checks that hospital-scoped roles carry a hospital.
func (p Principal) valid() error {
	if (p.Role == RoleManager || p.Role == RoleStaff) && p.HospitalID == "" {
		return fmt.Errorf("role %s requires a hospital_id", p.Role)
	}
	return nil
}

// CanRead reports whether p may read hospitalID's briefing, history and state.
func (p Principal) CanRead(hospitalID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleManager, RoleStaff:
		return p.HospitalID == hospitalID
	}
	return false
}

// CanUpdateState reports whether p may replace hospitalID's operating state.
func (p Principal) CanUpdateState(hospitalID string) bool {
	return p.Role == RoleManager && p.HospitalID == hospitalID
}

// CanPushSignals reports whether p may write environmental signals.
func (p Principal) CanPushSignals() bool {
	return p.Role == RoleFeed
}

// CanViewStatus reports whether p may read the cross-hospital status.
func (p Principal) CanViewStatus() bool {
	return p.Role == RoleAdmin
}

type ctxKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the Principal stored by Middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
