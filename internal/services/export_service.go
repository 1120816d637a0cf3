package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
)

// exportService renders quiz results as xlsx workbooks for download.
type exportService struct {
	repo         repositories.Repository
	groupService GroupService
	logger       *slog.Logger
}

func NewExportService(repo repositories.Repository, groupService GroupService, logger *slog.Logger) ExportService {
	return &exportService{
		repo:         repo,
		groupService: groupService,
		logger:       logger,
	}
}

var resultColumns = []string{"Student", "Email", "Attempt", "Status", "Score", "Percentage", "Time Spent (s)", "Started At", "Submitted At"}

// ExportQuizResults builds one sheet with a row per completed submission,
// ordered by submission time. Returns the workbook bytes and a filename.
func (s *exportService) ExportQuizResults(ctx context.Context, quizID uint, userID string) ([]byte, string, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrQuizNotFound
		}
		return nil, "", err
	}

	if quiz.CreatedBy != userID {
		can, err := s.groupService.CanModerate(ctx, quiz.GroupID, userID)
		if err != nil {
			return nil, "", err
		}
		if !can {
			return nil, "", NewPermissionError(userID, quizID, "quiz", "export_results", "requires quiz creator or group admin")
		}
	}

	submissions, err := s.repo.Submission().ListGradedByQuiz(ctx, nil, quizID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load submissions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Results"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, title := range resultColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, "", err
		}
	}

	for i, sub := range submissions {
		row := i + 2
		values := []interface{}{
			sub.User.FullName,
			sub.User.Email,
			sub.AttemptNumber,
			string(sub.Status),
			sub.TotalScore,
			fmt.Sprintf("%.1f%%", sub.Percentage),
			sub.TimeSpent,
			sub.StartedAt.Format("2006-01-02 15:04:05"),
			"",
		}
		if sub.SubmittedAt != nil {
			values[8] = sub.SubmittedAt.Format("2006-01-02 15:04:05")
		}
		if sub.Status == models.SubmissionSubmitted {
			values[5] = "pending grading"
		}

		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, "", err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("quiz_%d_results.xlsx", quizID)
	s.logger.Info("Quiz results exported", "quiz_id", quizID, "user_id", userID, "rows", len(submissions))
	return buf.Bytes(), filename, nil
}
