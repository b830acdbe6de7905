package examclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dictation-api/internal/dto"
	"github.com/noah-isme/dictation-api/internal/exam"
)

type fakeAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	submitted dto.SubmissionCreateRequest
	audioHits int
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": success, "message": message, "data": data})
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/abc", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "Session retrieved", dto.SessionResponse{
			Session: dto.SessionInfo{ID: "abc", ProblemSetID: 4, ReadCount: 2, Title: "Week 1"},
			Sentences: []dto.SentenceResponse{
				{ID: 12, SentenceNumber: 2, SentenceText: "둘"},
				{ID: 11, SentenceNumber: 1, SentenceText: "하나"},
			},
		})
	})
	mux.HandleFunc("/api/sessions/missing", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, false, "session not found", nil)
	})
	mux.HandleFunc("/api/submissions", func(w http.ResponseWriter, r *http.Request) {
		var request dto.SubmissionCreateRequest
		_ = json.NewDecoder(r.Body).Decode(&request)
		api.mu.Lock()
		api.submitted = request
		api.mu.Unlock()

		writeEnvelope(w, http.StatusCreated, true, "Submission graded", dto.SubmissionResultResponse{
			SubmissionID: 31,
			Score:        1,
			Total:        2,
			Answers: []dto.AnswerResponse{
				{SentenceNumber: 1, StudentAnswer: "하나", CorrectAnswer: "하나", IsCorrect: true},
				{SentenceNumber: 2, StudentAnswer: "셋", CorrectAnswer: "둘", IsCorrect: false},
			},
		})
	})
	mux.HandleFunc("/api/audio/4/1", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.audioHits++
		api.mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-sentence-one"))
	})
	mux.HandleFunc("/api/audio/4/9", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, false, "audio not found", nil)
	})

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	client, err := New(api.server.URL+"/", 2*time.Second, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestLoadSessionOrdersSentences(t *testing.T) {
	client := newTestClient(t, newFakeAPI(t))

	session, err := client.LoadSession(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, uint(4), session.ProblemSetID)
	require.Equal(t, 2, session.ReadCount)
	require.Equal(t, []int{1, 2}, session.SentenceNumbers)
}

func TestLoadSessionSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, newFakeAPI(t))

	_, err := client.LoadSession(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "session not found", apiErr.Message)
}

func TestSubmitSendsAnswersByNumber(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)

	result, err := client.Submit(context.Background(), exam.Submission{
		SessionID: "abc",
		Student:   exam.Student{Grade: 2, ClassNum: 1, StudentNum: 5, Name: "Lee"},
		Answers:   map[int]string{1: "하나", 2: "셋"},
	})
	require.NoError(t, err)
	require.Equal(t, uint(31), result.SubmissionID)
	require.Equal(t, 1, result.Score)
	require.Len(t, result.Verdicts, 2)
	require.False(t, result.Verdicts[1].IsCorrect)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Equal(t, map[string]string{"1": "하나", "2": "셋"}, api.submitted.Answers)
	require.Equal(t, "Lee", api.submitted.StudentName)
}

func TestSubmitReportsUnreachableServer(t *testing.T) {
	client, err := New("http://127.0.0.1:1", time.Second, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), exam.Submission{SessionID: "abc"})
	require.ErrorIs(t, err, ErrRequestFailed)
}

func TestFetchAudio(t *testing.T) {
	client := newTestClient(t, newFakeAPI(t))

	data, err := client.FetchAudio(context.Background(), 4, 1)
	require.NoError(t, err)
	require.Equal(t, "ID3-sentence-one", string(data))

	_, err = client.FetchAudio(context.Background(), 4, 9)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestPlayerDownloadsOnceAndRunsCommand(t *testing.T) {
	api := newFakeAPI(t)
	client := newTestClient(t, api)
	fs := afero.NewOsFs()

	player, err := NewPlayer(client, PlayerConfig{
		Command: "sh",
		Args:    []string{"-c", `test -s "$1" && test "$2" = "0.8"`, "sh", "{file}", "{speed}"},
		Fs:      fs,
		TmpDir:  t.TempDir(),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, player.Play(context.Background(), 4, 1))
	require.NoError(t, player.Play(context.Background(), 4, 1))

	api.mu.Lock()
	require.Equal(t, 1, api.audioHits)
	api.mu.Unlock()

	var path string
	for _, p := range player.files {
		path = p
	}
	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, player.Close())
	exists, err = afero.Exists(fs, path)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestPlayerReportsFailures(t *testing.T) {
	client := newTestClient(t, newFakeAPI(t))

	player, err := NewPlayer(client, PlayerConfig{Command: "false", TmpDir: t.TempDir(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = player.Close() })

	require.Error(t, player.Play(context.Background(), 4, 1))
	require.Error(t, player.Play(context.Background(), 4, 9))
}

func TestPlayerStopsOnCancel(t *testing.T) {
	client := newTestClient(t, newFakeAPI(t))

	player, err := NewPlayer(client, PlayerConfig{Command: "sleep", Args: []string{"5"}, TmpDir: t.TempDir(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = player.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, player.Play(ctx, 4, 1), context.DeadlineExceeded)
}
