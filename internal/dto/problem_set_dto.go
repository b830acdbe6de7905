package dto

import (
	"time"

	"github.com/noah-isme/dictation-api/internal/models"
	"github.com/noah-isme/dictation-api/internal/ttsjob"
)

// ProblemSetCreateRequest is the payload for saving a new problem set.
type ProblemSetCreateRequest struct {
	Title     string   `json:"title" validate:"required,max=255"`
	Sentences []string `json:"sentences" validate:"required,min=1,max=99,dive,required,max=500"`
}

// ProblemSetTitleRequest renames a problem set.
type ProblemSetTitleRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

// SentenceUpdateRequest replaces one sentence's text.
type SentenceUpdateRequest struct {
	SentenceText string `json:"sentenceText" validate:"required,max=500"`
}

// ProblemSetCreatedResponse is returned after a save.
type ProblemSetCreatedResponse struct {
	ID        uint   `json:"id"`
	VoiceName string `json:"voice_name"`
	Total     int    `json:"total"`
}

// ProblemSetSummaryResponse is one row of the problem set list.
type ProblemSetSummaryResponse struct {
	ID            uint      `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	SentenceCount int64     `json:"sentence_count"`
	HasAudio      bool      `json:"has_audio"`
}

// SentenceResponse serializes one sentence.
type SentenceResponse struct {
	ID             uint   `json:"id"`
	SentenceNumber int    `json:"sentence_number"`
	SentenceText   string `json:"sentence_text"`
}

// ProblemSetDetailResponse is a problem set with its ordered sentences.
type ProblemSetDetailResponse struct {
	ID        uint               `json:"id"`
	Title     string             `json:"title"`
	VoiceName string             `json:"voice_name"`
	CreatedAt time.Time          `json:"created_at"`
	Sentences []SentenceResponse `json:"sentences"`
}

// TTSStatusResponse mirrors a registry entry.
type TTSStatusResponse struct {
	Status    string    `json:"status"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSentenceResponses converts ordered sentence models.
func NewSentenceResponses(sentences []models.Sentence) []SentenceResponse {
	out := make([]SentenceResponse, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, SentenceResponse{
			ID:             s.ID,
			SentenceNumber: s.Number,
			SentenceText:   s.Text,
		})
	}
	return out
}

// NewProblemSetDetailResponse converts a loaded problem set.
func NewProblemSetDetailResponse(model models.ProblemSet) ProblemSetDetailResponse {
	return ProblemSetDetailResponse{
		ID:        model.ID,
		Title:     model.Title,
		VoiceName: model.VoiceName,
		CreatedAt: model.CreatedAt,
		Sentences: NewSentenceResponses(model.Sentences),
	}
}

// NewTTSStatusResponse converts registry progress.
func NewTTSStatusResponse(progress ttsjob.Progress) TTSStatusResponse {
	return TTSStatusResponse{
		Status:    string(progress.Status),
		Current:   progress.Current,
		Total:     progress.Total,
		Error:     progress.Error,
		UpdatedAt: progress.UpdatedAt,
	}
}
