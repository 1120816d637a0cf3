package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
)

func TestQuizToResponseCanSubmit(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)

	tests := []struct {
		name      string
		settings  models.QuizSettings
		deadline  *time.Time
		completed int64
		want      bool
	}{
		{
			name:      "retakes disabled blocks a second attempt regardless of the configured cap",
			settings:  models.QuizSettings{AllowRetakes: false, MaxAttempts: 5},
			completed: 1,
			want:      false,
		},
		{
			name:      "retakes disabled allows the first attempt",
			settings:  models.QuizSettings{AllowRetakes: false, MaxAttempts: 5},
			completed: 0,
			want:      true,
		},
		{
			name:      "attempts left under the cap",
			settings:  models.QuizSettings{AllowRetakes: true, MaxAttempts: 3},
			completed: 2,
			want:      true,
		},
		{
			name:      "cap reached",
			settings:  models.QuizSettings{AllowRetakes: true, MaxAttempts: 3},
			completed: 3,
			want:      false,
		},
		{
			name:      "closed quiz never accepts submissions",
			settings:  models.QuizSettings{AllowRetakes: true, MaxAttempts: 3},
			deadline:  &past,
			completed: 0,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepository()
			repo.submissions.countCompletedFn = func(quizID uint, userID string) (int64, error) {
				return tt.completed, nil
			}
			repo.submissions.listByQuizFn = func(quizID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
				return nil, tt.completed, nil
			}
			s := &quizService{
				repo:   repo,
				logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			}

			quiz := &models.Quiz{
				ID:        1,
				GroupID:   1,
				CreatedBy: "teacher-1",
				IsActive:  true,
				Deadline:  tt.deadline,
				Settings:  tt.settings,
			}

			resp, err := s.toResponse(context.Background(), quiz, "student-1")
			if err != nil {
				t.Fatalf("toResponse returned error: %v", err)
			}
			if resp.CanSubmit != tt.want {
				t.Errorf("CanSubmit = %v, want %v", resp.CanSubmit, tt.want)
			}
		})
	}
}
