// Package examclient connects the exam engine to a running dictation API.
package examclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/exam"
)

// ErrRequestFailed wraps transport failures and non-2xx responses.
var ErrRequestFailed = errors.New("dictation api request failed")

// APIError is a failure envelope returned by the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// Session is what the exam engine needs to know about a session.
type Session struct {
	ID              string
	ProblemSetID    uint
	Title           string
	ReadCount       int
	SentenceNumbers []int
}

// Client calls the dictation API with fiber's fasthttp agent.
type Client struct {
	baseURL string
	timeout time.Duration
	logger  zerolog.Logger
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// New builds a client for the API at baseURL, e.g. http://localhost:3010.
func New(baseURL string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api base url is required")
	}

	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger.With().Str("component", "exam_client").Logger(),
	}, nil
}

// LoadSession fetches a session and orders its sentences by number.
func (c *Client) LoadSession(ctx context.Context, sessionID string) (Session, error) {
	var payload dto.SessionResponse
	if err := c.doJSON(ctx, fiber.MethodGet, "/api/sessions/"+sessionID, nil, &payload); err != nil {
		return Session{}, err
	}

	numbers := make([]int, 0, len(payload.Sentences))
	for _, sentence := range payload.Sentences {
		numbers = append(numbers, sentence.SentenceNumber)
	}
	sort.Ints(numbers)

	return Session{
		ID:              payload.Session.ID,
		ProblemSetID:    payload.Session.ProblemSetID,
		Title:           payload.Session.Title,
		ReadCount:       payload.Session.ReadCount,
		SentenceNumbers: numbers,
	}, nil
}

// Submit implements exam.Submitter.
func (c *Client) Submit(ctx context.Context, submission exam.Submission) (exam.Result, error) {
	answers := make(map[string]string, len(submission.Answers))
	for number, text := range submission.Answers {
		answers[strconv.Itoa(number)] = text
	}

	request := dto.SubmissionCreateRequest{
		SessionID:   submission.SessionID,
		Grade:       submission.Student.Grade,
		ClassNum:    submission.Student.ClassNum,
		StudentNum:  submission.Student.StudentNum,
		StudentName: submission.Student.Name,
		Answers:     answers,
	}

	var payload dto.SubmissionResultResponse
	if err := c.doJSON(ctx, fiber.MethodPost, "/api/submissions", request, &payload); err != nil {
		return exam.Result{}, err
	}

	verdicts := make([]exam.Verdict, 0, len(payload.Answers))
	for _, answer := range payload.Answers {
		verdicts = append(verdicts, exam.Verdict{
			SentenceNumber: answer.SentenceNumber,
			StudentAnswer:  answer.StudentAnswer,
			CorrectAnswer:  answer.CorrectAnswer,
			IsCorrect:      answer.IsCorrect,
		})
	}

	return exam.Result{
		SubmissionID: payload.SubmissionID,
		Score:        payload.Score,
		Total:        payload.Total,
		Verdicts:     verdicts,
	}, nil
}

// FetchAudio downloads the stored audio for one sentence.
func (c *Client) FetchAudio(ctx context.Context, problemSetID uint, sentenceNumber int) ([]byte, error) {
	path := fmt.Sprintf("/api/audio/%d/%d", problemSetID, sentenceNumber)
	status, body, err := c.send(ctx, fiber.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != fiber.StatusOK {
		return nil, decodeFailure(status, body)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty audio for sentence %d", ErrRequestFailed, sentenceNumber)
	}
	return body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, request, target interface{}) error {
	status, body, err := c.send(ctx, method, path, request)
	if err != nil {
		return err
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return decodeFailure(status, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrRequestFailed, err)
	}
	if !env.Success {
		return &APIError{Status: status, Message: env.Message}
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrRequestFailed, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, request interface{}) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if request != nil {
		agent.JSON(request)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		c.logger.Debug().Str("method", method).Str("path", path).Errs("errors", errs).Msg("request failed")
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, errors.Join(errs...))
	}

	return status, body, nil
}

func decodeFailure(status int, body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return &APIError{Status: status, Message: env.Message}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}
