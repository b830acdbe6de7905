package ai

import "context"

// SentenceRequest describes a batch of dictation sentences to generate.
type SentenceRequest struct {
	// Keywords must each appear in exactly one sentence.
	Keywords           []string
	AdditionalRequests string
	Count              int
	// Grade is the elementary school year, 1 through 6.
	Grade int
}

// SentenceGenerator produces candidate dictation sentences for a teacher to edit.
type SentenceGenerator interface {
	GenerateSentences(ctx context.Context, req SentenceRequest) ([]string, error)
}
