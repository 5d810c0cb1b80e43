package models

import "time"

const ActivityMaxLength = 255

// ActivityLog is an append-only audit entry. UserId is nil for system actions.
type ActivityLog struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserId    *int      `gorm:"index;default:null" json:"user_id"`
	Activity  string    `gorm:"size:255;not null" json:"activity"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}
