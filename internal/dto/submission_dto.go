package dto

import (
	"time"

	"github.com/noah-isme/dictation-api/internal/models"
)

// SubmissionCreateRequest is a student's finished attempt. Answers are keyed by
// sentence number rendered as a string, e.g. {"1": "...", "2": "..."}.
type SubmissionCreateRequest struct {
	SessionID   string            `json:"sessionId" validate:"required,max=64"`
	Grade       int               `json:"grade" validate:"required,min=1,max=6"`
	ClassNum    int               `json:"classNum" validate:"required,min=1,max=30"`
	StudentNum  int               `json:"studentNum" validate:"required,min=1,max=60"`
	StudentName string            `json:"studentName" validate:"required,max=64"`
	Answers     map[string]string `json:"answers" validate:"required"`
}

// MyResultQuery looks up a student's latest result.
type MyResultQuery struct {
	SessionID  string `query:"sessionId"`
	Grade      int    `query:"grade" validate:"required,min=1"`
	ClassNum   int    `query:"classNum" validate:"required,min=1"`
	StudentNum int    `query:"studentNum" validate:"required,min=1"`
}

// AnswerResponse is one frozen per-sentence verdict.
type AnswerResponse struct {
	SentenceNumber int    `json:"sentence_number"`
	StudentAnswer  string `json:"student_answer"`
	CorrectAnswer  string `json:"correct_answer"`
	IsCorrect      bool   `json:"is_correct"`
}

// SubmissionResultResponse is returned right after grading.
type SubmissionResultResponse struct {
	SubmissionID uint             `json:"submissionId"`
	Score        int              `json:"score"`
	Total        int              `json:"total"`
	Answers      []AnswerResponse `json:"answers"`
}

// SubmissionSummaryResponse is one row of a problem set's submission list.
type SubmissionSummaryResponse struct {
	SubmissionID uint      `json:"submission_id"`
	Grade        int       `json:"grade"`
	ClassNum     int       `json:"class_num"`
	StudentNum   int       `json:"student_num"`
	StudentName  string    `json:"student_name"`
	Score        int       `json:"score"`
	Total        int       `json:"total"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// SubmissionDetailResponse is a stored submission with its answers.
type SubmissionDetailResponse struct {
	Submission   SubmissionSummaryResponse `json:"submission"`
	SessionID    string                    `json:"session_id"`
	ProblemSetID uint                      `json:"problem_set_id"`
	Answers      []AnswerResponse          `json:"answers"`
}

// NewAnswerResponses converts stored answers.
func NewAnswerResponses(answers []models.Answer) []AnswerResponse {
	out := make([]AnswerResponse, 0, len(answers))
	for _, a := range answers {
		out = append(out, AnswerResponse{
			SentenceNumber: a.SentenceNumber,
			StudentAnswer:  a.StudentAnswer,
			CorrectAnswer:  a.CorrectAnswer,
			IsCorrect:      a.IsCorrect,
		})
	}
	return out
}

// NewSubmissionSummaryResponse converts a submission without answers.
func NewSubmissionSummaryResponse(model models.Submission) SubmissionSummaryResponse {
	return SubmissionSummaryResponse{
		SubmissionID: model.ID,
		Grade:        model.Grade,
		ClassNum:     model.ClassNum,
		StudentNum:   model.StudentNum,
		StudentName:  model.StudentName,
		Score:        model.Score,
		Total:        model.Total,
		SubmittedAt:  model.SubmittedAt,
	}
}

// NewSubmissionSummarySlice converts a list of submissions.
func NewSubmissionSummarySlice(items []models.Submission) []SubmissionSummaryResponse {
	out := make([]SubmissionSummaryResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewSubmissionSummaryResponse(item))
	}
	return out
}

// NewSubmissionDetailResponse converts a submission loaded with answers and session.
func NewSubmissionDetailResponse(model models.Submission) SubmissionDetailResponse {
	return SubmissionDetailResponse{
		Submission:   NewSubmissionSummaryResponse(model),
		SessionID:    model.SessionID,
		ProblemSetID: model.Session.ProblemSetID,
		Answers:      NewAnswerResponses(model.Answers),
	}
}
