package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one graded student attempt. Score and Total are frozen at submission time.
type Submission struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	SessionID   string            `gorm:"size:64;not null;index" json:"session_id"`
	Grade       int               `gorm:"not null;index:idx_submission_student" json:"grade"`
	ClassNum    int               `gorm:"not null;index:idx_submission_student" json:"class_num"`
	StudentNum  int               `gorm:"not null;index:idx_submission_student" json:"student_num"`
	StudentName string            `gorm:"size:64;not null" json:"student_name"`
	Score       int               `gorm:"not null" json:"score"`
	Total       int               `gorm:"not null" json:"total"`
	RawAnswers  datatypes.JSONMap `json:"raw_answers"`
	SubmittedAt time.Time         `gorm:"autoCreateTime;index" json:"submitted_at"`
	Answers     []Answer          `gorm:"constraint:OnDelete:CASCADE" json:"answers,omitempty"`
	Session     StudentSession    `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Answer is a frozen per-sentence verdict. IsCorrect and CorrectAnswer are never recomputed.
type Answer struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	SubmissionID   uint   `gorm:"not null;index" json:"submission_id"`
	SentenceNumber int    `gorm:"not null" json:"sentence_number"`
	StudentAnswer  string `gorm:"type:text" json:"student_answer"`
	CorrectAnswer  string `gorm:"type:text" json:"correct_answer"`
	IsCorrect      bool   `gorm:"not null" json:"is_correct"`
}
