package models

import "time"

// StudentSession binds a problem set to a playback repeat count. Its ID is the shareable link token.
type StudentSession struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	ProblemSetID uint       `gorm:"not null;index" json:"problem_set_id"`
	ReadCount    int        `gorm:"not null" json:"read_count"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	ProblemSet   ProblemSet `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
