package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/dictation-api/internal/models"
)

func TestSubmissionRepositoryCreateAndLoad(t *testing.T) {
	db := setupDictationDB(t)
	sets := NewProblemSetRepository(db)
	sessions := NewSessionRepository(db)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	set := seedProblemSet(t, sets, "제출", "가", "나")
	_, _, err := sessions.FindOrCreate(ctx, &models.StudentSession{ID: "s1", ProblemSetID: set.ID, ReadCount: 1})
	require.NoError(t, err)

	submission := models.Submission{
		SessionID:   "s1",
		Grade:       2,
		ClassNum:    3,
		StudentNum:  14,
		StudentName: "이바다",
		Score:       1,
		Total:       2,
		Answers: []models.Answer{
			{SentenceNumber: 2, StudentAnswer: "다", CorrectAnswer: "나", IsCorrect: false},
			{SentenceNumber: 1, StudentAnswer: "가", CorrectAnswer: "가", IsCorrect: true},
		},
	}
	require.NoError(t, repo.Create(ctx, &submission))
	require.NotZero(t, submission.ID)

	loaded, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, set.ID, loaded.Session.ProblemSetID)
	require.Len(t, loaded.Answers, 2)
	require.Equal(t, 1, loaded.Answers[0].SentenceNumber)
	require.True(t, loaded.Answers[0].IsCorrect)
	require.Equal(t, "나", loaded.Answers[1].CorrectAnswer)

	_, err = repo.GetByID(ctx, 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryLatestForStudent(t *testing.T) {
	db := setupDictationDB(t)
	sets := NewProblemSetRepository(db)
	sessions := NewSessionRepository(db)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	first := seedProblemSet(t, sets, "첫째", "가")
	second := seedProblemSet(t, sets, "둘째", "나")
	_, _, err := sessions.FindOrCreate(ctx, &models.StudentSession{ID: "a", ProblemSetID: first.ID, ReadCount: 1})
	require.NoError(t, err)
	_, _, err = sessions.FindOrCreate(ctx, &models.StudentSession{ID: "b", ProblemSetID: second.ID, ReadCount: 1})
	require.NoError(t, err)

	now := time.Now()
	identity := StudentIdentity{Grade: 3, ClassNum: 2, StudentNum: 5}
	older := models.Submission{SessionID: "a", Grade: 3, ClassNum: 2, StudentNum: 5, StudentName: "박", Total: 1, SubmittedAt: now.Add(-time.Hour)}
	newer := models.Submission{SessionID: "b", Grade: 3, ClassNum: 2, StudentNum: 5, StudentName: "박", Total: 1, SubmittedAt: now}
	other := models.Submission{SessionID: "b", Grade: 3, ClassNum: 2, StudentNum: 6, StudentName: "최", Total: 1, SubmittedAt: now.Add(time.Minute)}
	require.NoError(t, repo.Create(ctx, &older))
	require.NoError(t, repo.Create(ctx, &newer))
	require.NoError(t, repo.Create(ctx, &other))

	inSession, err := repo.LatestForStudent(ctx, identity, "a")
	require.NoError(t, err)
	require.Equal(t, older.ID, inSession.ID)

	anywhere, err := repo.LatestForStudent(ctx, identity, "")
	require.NoError(t, err)
	require.Equal(t, newer.ID, anywhere.ID)

	_, err = repo.LatestForStudent(ctx, StudentIdentity{Grade: 1, ClassNum: 1, StudentNum: 1}, "")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	list, err := repo.ListByProblemSet(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, other.ID, list[0].ID)
}
