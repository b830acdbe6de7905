package dto

// GenerateRequest asks the language model for candidate sentences.
type GenerateRequest struct {
	Inputs             string `json:"inputs" validate:"max=500"`
	AdditionalRequests string `json:"additionalRequests" validate:"max=500"`
	Count              int    `json:"count" validate:"required,min=1,max=20"`
	Grade              int    `json:"grade" validate:"omitempty,min=1,max=6"`
}

// GenerateResponse lists generated sentences for the teacher to edit.
type GenerateResponse struct {
	Sentences []string `json:"sentences"`
}
