package models

import (
	"time"

	"gorm.io/gorm"
)

// Player is the local profile of a gamer. Identity is owned by the gateway;
// the record is created on first sight and only its rating and title change
// afterwards.
type Player struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	DisplayName string `gorm:"index;not null" json:"display_name"`
	Title       string `json:"title"`
	Rating      int    `gorm:"not null;default:0;index" json:"rating"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
