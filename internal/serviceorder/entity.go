package serviceorder

import "time"

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusScheduled  Status = "SCHEDULED"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// ServiceOrder is owned by the order management system; this service only
// reads it to dispatch offers.
type ServiceOrder struct {
	ID                     string    `yaml:"id"`
	CountryCode            string    `yaml:"country_code"`
	ServiceType            string    `yaml:"service_type"`
	ScheduledDate          time.Time `yaml:"scheduled_date"`
	Status                 Status    `yaml:"status"`
	RequiredCertifications []string  `yaml:"required_certifications,omitempty"`
	// RequestedMode is an optional dispatch mode hint (DIRECT, OFFER, BROADCAST).
	RequestedMode string    `yaml:"requested_mode,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
	UpdatedAt     time.Time `yaml:"updated_at"`
}

// Assignable reports whether offers may be dispatched for the order.
func (o *ServiceOrder) Assignable() bool {
	return o.Status == StatusCreated || o.Status == StatusScheduled
}
