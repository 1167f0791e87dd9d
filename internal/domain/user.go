package domain

import "time"

// UserRole distinguishes drivers from passengers.
type UserRole string

const (
	RoleDriver    UserRole = "driver"
	RolePassenger UserRole = "passenger"
)

// DriverApproval is the admin-approval status gating trip creation.
type DriverApproval string

const (
	DriverApprovalNone     DriverApproval = ""
	DriverApprovalPending  DriverApproval = "pending"
	DriverApprovalApproved DriverApproval = "approved"
	DriverApprovalRejected DriverApproval = "rejected"
)

// User represents a registered rider or driver.
type User struct {
	ID             string
	FirstName      string
	LastName       string
	University     string
	ProfilePhoto   string
	Role           UserRole
	DriverApproval DriverApproval
	CreatedAt      time.Time
}

// MayCreateTrips reports whether the user passes the driver eligibility gate.
func (u *User) MayCreateTrips() bool {
	return u.Role == RoleDriver && u.DriverApproval == DriverApprovalApproved
}
