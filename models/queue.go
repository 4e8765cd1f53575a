package models

import "time"

// QueueEntry is a player waiting to be paired. Rating and title are
// snapshotted at join time so listing the queue needs no profile lookups.
type QueueEntry struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID    string    `gorm:"uniqueIndex;type:varchar(64);not null" json:"player_id"`
	DisplayName string    `gorm:"not null" json:"display_name"`
	Rating      int       `json:"rating"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `gorm:"index;not null" json:"created_at"`
}
