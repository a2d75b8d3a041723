package models

import "time"

// Training assignment statuses
const (
	TrainingStatusPending   = "pending"
	TrainingStatusAssigned  = "assigned"
	TrainingStatusCancelled = "cancelled"
)

// TrainingAssignment is a reinforced-training task scheduled after a confirmed fast read
type TrainingAssignment struct {
	ID         int64      `json:"id"`
	TrackingID string     `json:"trackingId"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	DueAt      time.Time  `json:"dueAt"`
	AssignedAt *time.Time `json:"assignedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
