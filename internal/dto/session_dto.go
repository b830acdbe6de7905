package dto

import (
	"time"

	"github.com/noah-isme/dictation-api/internal/models"
)

// SessionCreateRequest asks for a shareable session on a problem set.
type SessionCreateRequest struct {
	ProblemSetID uint `json:"problemSetId" validate:"required,gt=0"`
	ReadCount    int  `json:"readCount" validate:"required,min=1,max=10"`
}

// SessionCreatedResponse reports the session id and whether it already existed.
type SessionCreatedResponse struct {
	SessionID string `json:"sessionId"`
	Reused    bool   `json:"reused"`
}

// SessionInfo is the session metadata shown to students.
type SessionInfo struct {
	ID           string    `json:"id"`
	ProblemSetID uint      `json:"problem_set_id"`
	ReadCount    int       `json:"read_count"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
}

// SessionResponse carries everything the exam client needs, including the sentence text.
type SessionResponse struct {
	Session   SessionInfo        `json:"session"`
	Sentences []SentenceResponse `json:"sentences"`
}

// NewSessionResponse converts a session loaded with its problem set and sentences.
func NewSessionResponse(model models.StudentSession) SessionResponse {
	return SessionResponse{
		Session: SessionInfo{
			ID:           model.ID,
			ProblemSetID: model.ProblemSetID,
			ReadCount:    model.ReadCount,
			Title:        model.ProblemSet.Title,
			CreatedAt:    model.CreatedAt,
		},
		Sentences: NewSentenceResponses(model.ProblemSet.Sentences),
	}
}
