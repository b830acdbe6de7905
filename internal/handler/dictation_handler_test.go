package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dictation-api/internal/audio"
	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/models"
)

func createProblemSet(t *testing.T, d dictationApp, title string, sentences ...string) dto.ProblemSetCreatedResponse {
	t.Helper()
	resp, raw := d.do(t, http.MethodPost, "/api/problem-sets", map[string]interface{}{
		"title":     title,
		"sentences": sentences,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))

	var created dto.ProblemSetCreatedResponse
	decodeEnvelope(t, raw, &created)
	return created
}

func TestDictationFlowEndToEnd(t *testing.T) {
	d := newDictationApp(t, appOptions{})
	created := createProblemSet(t, d, "받아쓰기 1회", "오늘은 날씨가 좋다.", "바람이 분다.")
	require.Equal(t, 2, created.Total)

	resp, raw := d.do(t, http.MethodGet, fmt.Sprintf("/api/problem-sets/%d", created.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateContract(t, "problem_set_detail.schema.json", raw)

	resp, raw = d.do(t, http.MethodGet, "/api/tts-status", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateContract(t, "tts_statuses.schema.json", raw)

	var list []dto.ProblemSetSummaryResponse
	resp, raw = d.do(t, http.MethodGet, "/api/problem-sets", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeEnvelope(t, raw, &list)
	require.Len(t, list, 1)
	require.False(t, list[0].HasAudio)

	var session dto.SessionCreatedResponse
	resp, raw = d.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"problemSetId": created.ID, "readCount": 2})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	decodeEnvelope(t, raw, &session)
	require.False(t, session.Reused)

	var again dto.SessionCreatedResponse
	_, raw = d.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"problemSetId": created.ID, "readCount": 3})
	decodeEnvelope(t, raw, &again)
	require.True(t, again.Reused)
	require.Equal(t, session.SessionID, again.SessionID)

	resp, raw = d.do(t, http.MethodGet, "/api/sessions/"+session.SessionID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateContract(t, "session.schema.json", raw)

	resp, raw = d.do(t, http.MethodPost, "/api/submissions", map[string]interface{}{
		"sessionId":   session.SessionID,
		"grade":       3,
		"classNum":    2,
		"studentNum":  11,
		"studentName": "이바다",
		"answers":     map[string]string{"1": " 오늘은 날씨가 좋다. ", "2": "바람이 분다"},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	validateContract(t, "submission_result.schema.json", raw)

	var result dto.SubmissionResultResponse
	decodeEnvelope(t, raw, &result)
	require.Equal(t, 1, result.Score)
	require.Equal(t, 2, result.Total)

	var submissions []dto.SubmissionSummaryResponse
	resp, raw = d.do(t, http.MethodGet, fmt.Sprintf("/api/submissions/%d", created.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeEnvelope(t, raw, &submissions)
	require.Len(t, submissions, 1)

	var detail dto.SubmissionDetailResponse
	resp, raw = d.do(t, http.MethodGet, fmt.Sprintf("/api/submissions/detail/%d", result.SubmissionID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeEnvelope(t, raw, &detail)
	require.Equal(t, "바람이 분다.", detail.Answers[1].CorrectAnswer)

	var mine dto.SubmissionDetailResponse
	resp, raw = d.do(t, http.MethodGet, "/api/my-result?grade=3&classNum=2&studentNum=11&sessionId="+session.SessionID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	decodeEnvelope(t, raw, &mine)
	require.Equal(t, result.SubmissionID, mine.Submission.SubmissionID)

	resp, _ = d.do(t, http.MethodGet, "/api/my-result/"+session.SessionID+"?grade=3&classNum=2&studentNum=11", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = d.do(t, http.MethodDelete, fmt.Sprintf("/api/problem-sets/%d", created.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = d.do(t, http.MethodGet, "/api/sessions/"+session.SessionID, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = d.do(t, http.MethodGet, fmt.Sprintf("/api/submissions/detail/%d", result.SubmissionID), nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var count int64
	require.NoError(t, d.db.Model(&models.Answer{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestProblemSetValidationAndNotFound(t *testing.T) {
	d := newDictationApp(t, appOptions{})

	resp, raw := d.do(t, http.MethodPost, "/api/problem-sets", map[string]interface{}{"title": "제목"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, raw, nil)
	require.False(t, env.Success)
	require.Contains(t, string(env.Details), "Sentences")

	resp, _ = d.do(t, http.MethodPost, "/api/save", map[string]interface{}{"title": "제목", "sentences": []string{"  "}})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = d.do(t, http.MethodGet, "/api/problem-sets/999", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = d.do(t, http.MethodGet, "/api/problem-sets/abc", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = d.do(t, http.MethodPatch, "/api/sentences/999", map[string]string{"sentenceText": "가."})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = d.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"problemSetId": 999, "readCount": 1})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = d.do(t, http.MethodPost, "/api/submissions", map[string]interface{}{
		"sessionId": "missing", "grade": 1, "classNum": 1, "studentNum": 1, "studentName": "가", "answers": map[string]string{},
	})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = d.do(t, http.MethodGet, "/api/my-result?grade=1", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSaveAliasAndSentenceEdit(t *testing.T) {
	d := newDictationApp(t, appOptions{})

	resp, raw := d.do(t, http.MethodPost, "/api/save", map[string]interface{}{"title": "옛 경로", "sentences": []string{"가.", "나."}})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	var created dto.ProblemSetCreatedResponse
	decodeEnvelope(t, raw, &created)

	var detail dto.ProblemSetDetailResponse
	_, raw = d.do(t, http.MethodGet, fmt.Sprintf("/api/problem-sets/%d", created.ID), nil)
	decodeEnvelope(t, raw, &detail)

	resp, raw = d.do(t, http.MethodPatch, fmt.Sprintf("/api/sentences/%d", detail.Sentences[0].ID), map[string]string{"sentenceText": "가방."})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	resp, _ = d.do(t, http.MethodPatch, fmt.Sprintf("/api/problem-sets/%d", created.ID), map[string]string{"title": "새 제목"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status struct {
		Status *dto.TTSStatusResponse `json:"status"`
	}
	_, raw = d.do(t, http.MethodGet, fmt.Sprintf("/api/tts-status/%d", created.ID), nil)
	decodeEnvelope(t, raw, &status)
	require.NotNil(t, status.Status)
	require.Equal(t, 3, status.Status.Total, "the edit joins the save job still in the queue")

	_, raw = d.do(t, http.MethodGet, "/api/tts-status/4242", nil)
	decodeEnvelope(t, raw, &status)
	require.Nil(t, status.Status)

	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	require.Len(t, d.queue.jobs, 2)
	require.Equal(t, "가방.", d.queue.jobs[1].Sentences[0].Text)
}

func TestAudioHandler(t *testing.T) {
	d := newDictationApp(t, appOptions{})
	mp3 := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)
	require.NoError(t, d.store.Put(context.Background(), audio.Key{ProblemSetID: 7, Number: 3}, mp3))

	resp, raw := d.do(t, http.MethodGet, "/api/audio/7/3", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "audio/mpeg", resp.Header.Get(fiber.HeaderContentType))
	require.Equal(t, mp3, raw)

	resp, _ = d.do(t, http.MethodGet, "/api/audio/7/4", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = d.do(t, http.MethodGet, "/api/audio/7/zero", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGenerateWithoutModel(t *testing.T) {
	d := newDictationApp(t, appOptions{})

	resp, _ := d.do(t, http.MethodPost, "/api/generate", map[string]interface{}{"inputs": "사과", "count": 3})
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = d.do(t, http.MethodPost, "/api/generate", map[string]interface{}{"count": 50})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	d := newDictationApp(t, appOptions{})

	resp, raw := d.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Test", resp.Header.Get("X-Application"))
	require.Contains(t, string(raw), `"status":"ok"`)

	resp, _ = d.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestTeacherRoutesRequireTokenWhenSecretSet(t *testing.T) {
	const secret = "classroom"
	d := newDictationApp(t, appOptions{jwtSecret: secret})

	resp, _ := d.do(t, http.MethodGet, "/api/problem-sets", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = d.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"problemSetId": 1, "readCount": 1})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = d.do(t, http.MethodGet, "/api/submissions/1", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = d.do(t, http.MethodPost, "/api/save", map[string]interface{}{"title": "제목", "sentences": []string{"가."}})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	d.queue.mu.Lock()
	require.Empty(t, d.queue.jobs, "a rejected save must not reach the handler")
	d.queue.mu.Unlock()

	// Student routes stay reachable without a token.
	resp, _ = d.do(t, http.MethodGet, "/api/sessions/unknown", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = d.do(t, http.MethodPost, "/api/submissions", map[string]interface{}{
		"sessionId": "unknown", "grade": 1, "classNum": 1, "studentNum": 1, "studentName": "가", "answers": map[string]string{},
	})
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "teacher-1", "role": "teacher"}).SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/problem-sets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = d.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
