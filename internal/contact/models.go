package contact

import "time"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Request is one submission of the marketing site's contact form.
type Request struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	Name    string `gorm:"type:varchar(128);not null" json:"name"`
	Email   string `gorm:"type:varchar(255);index;not null" json:"email"`
	Company string `gorm:"type:varchar(128)" json:"company,omitempty"`
	Message string `gorm:"type:text;not null" json:"message"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_contact_idempo" json:"-"`

	Status Status `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Request) TableName() string { return "contact_requests" }
