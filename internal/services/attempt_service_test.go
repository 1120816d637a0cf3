package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/validator"
)

func newTestAttemptService(repo *stubRepository) *attemptService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &attemptService{
		repo:         repo,
		groupService: &groupService{repo: repo, logger: logger, validator: validator.New()},
		logger:       logger,
		validator:    validator.New(),
	}
}

// wireAttemptFixture points the stub repository at an open quiz in group 1
// with user-7 as a member.
func wireAttemptFixture(repo *stubRepository) *models.Quiz {
	quiz := quizWithQuestions()
	quiz.GroupID = 1
	quiz.IsActive = true
	repo.quizzes.getByIDWithDetailsFn = func(id uint) (*models.Quiz, error) {
		return quiz, nil
	}
	repo.groups.getMemberFn = func(groupID uint, userID string) (*models.GroupMember, error) {
		return &models.GroupMember{GroupID: groupID, UserID: userID, Role: models.MemberRoleMember}, nil
	}
	return quiz
}

func TestAttemptStartEnforcesCap(t *testing.T) {
	repo := newStubRepository()
	quiz := wireAttemptFixture(repo)
	svc := newTestAttemptService(repo)

	t.Run("exhausted cap rejects a fresh attempt", func(t *testing.T) {
		repo.submissions.countCompletedFn = func(quizID uint, userID string) (int64, error) {
			return int64(quiz.Settings.MaxAttempts), nil
		}

		_, err := svc.Start(context.Background(), quiz.ID, "user-7")
		if !errors.Is(err, ErrAttemptsExhausted) {
			t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
		}
		if repo.submissions.created != nil {
			t.Error("no submission may be created once the cap is reached")
		}
		if repo.quizzes.lockCalls == 0 {
			t.Error("the cap check must run under the quiz row lock")
		}
	})

	t.Run("retakes disabled caps at one completed attempt", func(t *testing.T) {
		quiz.Settings.AllowRetakes = false
		defer func() { quiz.Settings.AllowRetakes = true }()
		repo.submissions.countCompletedFn = func(quizID uint, userID string) (int64, error) {
			return 1, nil
		}

		_, err := svc.Start(context.Background(), quiz.ID, "user-7")
		if !errors.Is(err, ErrAttemptsExhausted) {
			t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
		}
	})

	t.Run("attempt below cap is numbered after the last one", func(t *testing.T) {
		repo.submissions.countCompletedFn = func(quizID uint, userID string) (int64, error) {
			return 2, nil
		}
		repo.submissions.maxAttemptFn = func(quizID uint, userID string) (int, error) {
			return 2, nil
		}

		resp, err := svc.Start(context.Background(), quiz.ID, "user-7")
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
		if resp.Resumed {
			t.Error("a fresh attempt must not be flagged as resumed")
		}
		if repo.submissions.created == nil {
			t.Fatal("expected a submission to be created")
		}
		if got := repo.submissions.created.AttemptNumber; got != 3 {
			t.Errorf("attempt number = %d, want 3", got)
		}
		if repo.submissions.created.Status != models.SubmissionInProgress {
			t.Errorf("new attempt status = %q, want in-progress", repo.submissions.created.Status)
		}
	})
}

func TestAttemptStartResumesActive(t *testing.T) {
	repo := newStubRepository()
	quiz := wireAttemptFixture(repo)
	active := &models.Submission{ID: 9, QuizID: quiz.ID, UserID: "user-7", AttemptNumber: 2, Status: models.SubmissionInProgress}
	repo.submissions.getActiveFn = func(quizID uint, userID string) (*models.Submission, error) {
		return active, nil
	}
	svc := newTestAttemptService(repo)

	resp, err := svc.Start(context.Background(), quiz.ID, "user-7")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !resp.Resumed {
		t.Error("an in-progress attempt must be resumed")
	}
	if resp.Submission.ID != active.ID {
		t.Errorf("resumed submission id = %d, want %d", resp.Submission.ID, active.ID)
	}
	if repo.submissions.created != nil {
		t.Error("resuming must not create a second submission")
	}
}

func TestAttemptStartClosedQuizBeforeResume(t *testing.T) {
	repo := newStubRepository()
	quiz := wireAttemptFixture(repo)
	past := time.Now().UTC().Add(-time.Hour)
	quiz.Deadline = &past

	resumeChecked := false
	repo.submissions.getActiveFn = func(quizID uint, userID string) (*models.Submission, error) {
		resumeChecked = true
		return &models.Submission{ID: 9, QuizID: quiz.ID, UserID: "user-7", Status: models.SubmissionInProgress}, nil
	}
	svc := newTestAttemptService(repo)

	_, err := svc.Start(context.Background(), quiz.ID, "user-7")
	if !errors.Is(err, ErrQuizDeadlinePassed) {
		t.Fatalf("expected ErrQuizDeadlinePassed, got %v", err)
	}
	if resumeChecked {
		t.Error("a closed quiz must be rejected before looking for an attempt to resume")
	}
}

func TestAttemptSubmitMatchesAttempt(t *testing.T) {
	repo := newStubRepository()
	quiz := wireAttemptFixture(repo)
	svc := newTestAttemptService(repo)

	req := &SubmitAttemptRequest{
		AttemptID: 42,
		Answers:   []SubmitAnswerRequest{{QuestionIndex: 0, Answer: "Mercury"}},
	}

	tests := []struct {
		name    string
		stored  *models.Submission
		wantErr error
	}{
		{
			name:    "unknown attempt id",
			stored:  nil,
			wantErr: ErrSubmissionNotFound,
		},
		{
			name:    "attempt belongs to another user",
			stored:  &models.Submission{ID: 42, QuizID: quiz.ID, UserID: "someone-else", Status: models.SubmissionInProgress},
			wantErr: ErrSubmissionNotFound,
		},
		{
			name:    "attempt belongs to another quiz",
			stored:  &models.Submission{ID: 42, QuizID: quiz.ID + 1, UserID: "user-7", Status: models.SubmissionInProgress},
			wantErr: ErrSubmissionNotFound,
		},
		{
			name:    "attempt already graded",
			stored:  &models.Submission{ID: 42, QuizID: quiz.ID, UserID: "user-7", Status: models.SubmissionGraded},
			wantErr: ErrAttemptAlreadySubmitted,
		},
		{
			name:    "attempt already handed in",
			stored:  &models.Submission{ID: 42, QuizID: quiz.ID, UserID: "user-7", Status: models.SubmissionSubmitted},
			wantErr: ErrAttemptAlreadySubmitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.submissions.getByIDFn = nil
			if tt.stored != nil {
				stored := tt.stored
				repo.submissions.getByIDFn = func(id uint) (*models.Submission, error) {
					return stored, nil
				}
			}
			repo.submissions.updated = nil

			_, err := svc.Submit(context.Background(), quiz.ID, req, "user-7")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Submit error = %v, want %v", err, tt.wantErr)
			}
			if repo.submissions.updated != nil {
				t.Error("a rejected submit must not store anything")
			}
		})
	}
}

func TestAttemptSubmitAllowedAfterDeadline(t *testing.T) {
	repo := newStubRepository()
	quiz := wireAttemptFixture(repo)
	past := time.Now().UTC().Add(-time.Minute)
	quiz.Deadline = &past

	started := time.Now().UTC().Add(-10 * time.Minute)
	repo.submissions.getByIDFn = func(id uint) (*models.Submission, error) {
		return &models.Submission{
			ID:            42,
			QuizID:        quiz.ID,
			UserID:        "user-7",
			AttemptNumber: 1,
			Status:        models.SubmissionInProgress,
			StartedAt:     started,
		}, nil
	}
	svc := newTestAttemptService(repo)

	req := &SubmitAttemptRequest{
		AttemptID: 42,
		Answers: []SubmitAnswerRequest{
			{QuestionIndex: 0, Answer: "Mercury"},
			{QuestionIndex: 1, Answer: false},
			{QuestionIndex: 2, Answer: " pacific "},
			{QuestionIndex: 3, Answer: "Evaporation, condensation, precipitation."},
		},
	}

	resp, err := svc.Submit(context.Background(), quiz.ID, req, "user-7")
	if err != nil {
		t.Fatalf("an attempt started in time must be accepted past the deadline, got %v", err)
	}
	if !resp.PendingManualGrading {
		t.Error("essay answers must leave the attempt pending manual grading")
	}

	stored := repo.submissions.updated
	if stored == nil {
		t.Fatal("expected the submission to be stored")
	}
	if stored.Status != models.SubmissionSubmitted {
		t.Errorf("stored status = %q, want submitted", stored.Status)
	}
	if stored.TotalScore != 5 {
		t.Errorf("auto-graded score = %v, want 5", stored.TotalScore)
	}
	if stored.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", stored.Percentage)
	}
	if stored.SubmittedAt == nil {
		t.Error("submitted_at must be set")
	}
	if stored.TimeSpent <= 0 {
		t.Error("time spent must be derived from the start time when not reported")
	}
}
