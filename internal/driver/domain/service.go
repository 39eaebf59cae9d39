package domain

import "context"

type CreateRequest struct {
	DriverCode string `json:"driver_code"`
	FullName   string `json:"full_name"`
	SalaryType string `json:"salary_type"`
	Schedule   string `json:"schedule"`
}

// UpdateRequest changes only the fields that are set. The driver code is
// immutable because manifests and payroll are keyed by it.
type UpdateRequest struct {
	FullName   *string `json:"full_name"`
	SalaryType *string `json:"salary_type"`
	Schedule   *string `json:"schedule"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*DriverProfile, error)
	Get(ctx context.Context, code string) (*DriverProfile, error)
	List(ctx context.Context) ([]DriverProfile, error)
	Update(ctx context.Context, code string, req UpdateRequest) (*DriverProfile, error)
	// Delete removes the driver together with their deliveries, payroll
	// records and address mismatches.
	Delete(ctx context.Context, code string) error
}
