package models

import "time"

// Tour is the catalog view the booking core reads. Catalog CRUD itself is
// owned elsewhere; only the fields admission control needs are carried.
type Tour struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	Location       string      `json:"location,omitempty"`
	Price          int64       `json:"price"` // minor units, per participant
	MaxGroupSize   int         `json:"max_group_size"`
	AvailableDates []time.Time `json:"available_dates"`
	OperatorID     string      `json:"operator_id"`
	IsActive       bool        `json:"is_active"`
	ApprovalStatus string      `json:"approval_status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Bookable reports whether the tour accepts new booking requests at all.
func (t *Tour) Bookable() bool {
	return t.IsActive && t.ApprovalStatus == ApprovalApproved
}

// HasDate reports whether the calendar date is in the tour's published
// availability list. Comparison is by date, not instant.
func (t *Tour) HasDate(date time.Time) bool {
	want := date.Format(DateLayout)
	for _, d := range t.AvailableDates {
		if d.Format(DateLayout) == want {
			return true
		}
	}
	return false
}
