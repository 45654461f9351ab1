package domain

import "time"

// Department represents an organizational unit (finance, registration,
// deanery, ...).
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
