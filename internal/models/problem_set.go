package models

import "time"

// ProblemSet is a titled, ordered collection of dictation sentences read by a single voice.
type ProblemSet struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Title     string     `gorm:"size:255;not null" json:"title"`
	VoiceName string     `gorm:"size:32;not null" json:"voice_name"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	Sentences []Sentence `gorm:"constraint:OnDelete:CASCADE" json:"sentences,omitempty"`
}

// Sentence is one dictation item. Number is 1-based and never renumbered.
type Sentence struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ProblemSetID uint   `gorm:"not null;uniqueIndex:idx_sentence_set_number" json:"problem_set_id"`
	Number       int    `gorm:"column:sentence_number;not null;uniqueIndex:idx_sentence_set_number" json:"sentence_number"`
	Text         string `gorm:"column:sentence_text;type:text;not null" json:"sentence_text"`
}

// ProblemSetSummary is the list projection used by the teacher dashboard.
type ProblemSetSummary struct {
	ID            uint
	Title         string
	CreatedAt     time.Time
	SentenceCount int64
}
