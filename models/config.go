package models

import (
	"sort"
	"time"
)

// DefaultConfigID is the well-known key of the configuration singleton.
const DefaultConfigID = "defaultConfig"

const (
	DefaultRankedCardPairs = 20
	MaxRankedCardPairs     = 400
	DefaultRankedMoveTime  = 20 // seconds
	MaxRankedMoveTime      = 1000
)

// TitleMap maps a rating threshold to the title earned above it.
type TitleMap map[int]string

// Thresholds returns the map keys in ascending order.
func (t TitleMap) Thresholds() []int {
	keys := make([]int, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// GameConfig holds the tunables an operator can change at runtime.
type GameConfig struct {
	ConfID          string    `gorm:"primaryKey;type:varchar(64)" json:"-"`
	RankedCardPairs int       `gorm:"not null;default:20" json:"rankedcardpairs"`
	RankedMoveTime  int       `gorm:"not null;default:20" json:"rankedmovetime"`
	TitleMap        TitleMap  `gorm:"serializer:json;type:jsonb;not null" json:"titlemap"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// DefaultGameConfig returns the values used when the singleton is first created.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		ConfID:          DefaultConfigID,
		RankedCardPairs: DefaultRankedCardPairs,
		RankedMoveTime:  DefaultRankedMoveTime,
		TitleMap:        TitleMap{},
	}
}

// MoveTime returns the ranked per-move budget.
func (c GameConfig) MoveTime() time.Duration {
	return time.Duration(c.RankedMoveTime) * time.Second
}

// Clone returns a copy with its own title map.
func (c GameConfig) Clone() GameConfig {
	titles := make(TitleMap, len(c.TitleMap))
	for k, v := range c.TitleMap {
		titles[k] = v
	}
	c.TitleMap = titles
	return c
}
