package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
)

// effectiveMaxAttempts resolves the retake settings into one cap. With
// retakes off, a single completed attempt exhausts the quiz regardless of
// the configured maximum.
func effectiveMaxAttempts(quiz *models.Quiz) int {
	if !quiz.Settings.AllowRetakes {
		return 1
	}
	if quiz.Settings.MaxAttempts < 1 {
		return 1
	}
	return quiz.Settings.MaxAttempts
}

// questionsForAttempt builds the taker-facing question list. Each entry
// keeps its canonical index so shuffled presentation never changes how
// answers are keyed.
func questionsForAttempt(quiz *models.Quiz) []QuestionForAttempt {
	questions := make([]QuestionForAttempt, 0, len(quiz.Questions))
	for i, q := range quiz.Questions {
		entry := QuestionForAttempt{
			Index:     i,
			Text:      q.Text,
			Type:      q.Type,
			Marks:     q.Marks,
			TimeLimit: q.TimeLimit,
		}
		if len(q.Options) > 0 {
			var options []string
			if err := json.Unmarshal(q.Options, &options); err == nil {
				if quiz.Settings.ShuffleOptions {
					options = shuffled(options)
				}
				entry.Options = options
			}
		}
		questions = append(questions, entry)
	}

	if quiz.Settings.ShuffleQuestions {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	return questions
}

func shuffled(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// gradeAnswers scores every submitted answer against the quiz's ordered
// question list. Essay answers score zero until graded manually; the second
// return is the summed auto-graded score.
func gradeAnswers(quiz *models.Quiz, submissionID uint, answers []SubmitAnswerRequest) ([]models.SubmissionAnswer, float64, bool, error) {
	rows := make([]models.SubmissionAnswer, 0, len(answers))
	totalScore := 0.0
	pendingManual := false
	seen := make(map[int]bool, len(answers))

	for _, ans := range answers {
		if ans.QuestionIndex < 0 || ans.QuestionIndex >= len(quiz.Questions) {
			return nil, 0, false, NewConflictError("submission", fmt.Sprintf("question index %d out of range", ans.QuestionIndex))
		}
		if seen[ans.QuestionIndex] {
			return nil, 0, false, NewConflictError("submission", fmt.Sprintf("duplicate answer for question index %d", ans.QuestionIndex))
		}
		seen[ans.QuestionIndex] = true

		question := quiz.Questions[ans.QuestionIndex]
		row := models.SubmissionAnswer{
			SubmissionID:  submissionID,
			QuestionIndex: ans.QuestionIndex,
		}
		if ans.TimeSpent != nil {
			row.TimeSpent = *ans.TimeSpent
		}

		data, err := json.Marshal(ans.Answer)
		if err != nil {
			return nil, 0, false, fmt.Errorf("failed to marshal answer %d: %w", ans.QuestionIndex, err)
		}
		row.Answer = datatypes.JSON(data)

		if question.Type.IsAutoGradeable() {
			correct, err := isAnswerCorrect(&question, ans.Answer)
			if err != nil {
				return nil, 0, false, err
			}
			row.IsCorrect = correct
			if correct {
				row.MarksObtained = float64(question.Marks)
				totalScore += row.MarksObtained
			}
		} else {
			pendingManual = true
		}

		rows = append(rows, row)
	}

	// Unanswered essay questions need no manual pass.
	return rows, totalScore, pendingManual, nil
}

// isAnswerCorrect compares one answer against the stored correct answer.
// Multiple-choice and true/false use exact equality; short answers compare
// trimmed and case-insensitive.
func isAnswerCorrect(question *models.QuizQuestion, answer interface{}) (bool, error) {
	if len(question.CorrectAnswer) == 0 || answer == nil {
		return false, nil
	}

	switch question.Type {
	case models.MultipleChoice, models.ShortAnswer:
		var correct string
		if err := json.Unmarshal(question.CorrectAnswer, &correct); err != nil {
			return false, fmt.Errorf("corrupt correct answer for question %d: %w", question.Order, err)
		}
		given, ok := answer.(string)
		if !ok {
			return false, nil
		}
		if question.Type == models.ShortAnswer {
			return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(correct)), nil
		}
		return given == correct, nil

	case models.TrueFalse:
		var correct bool
		if err := json.Unmarshal(question.CorrectAnswer, &correct); err != nil {
			return false, fmt.Errorf("corrupt correct answer for question %d: %w", question.Order, err)
		}
		given, ok := answer.(bool)
		if !ok {
			return false, nil
		}
		return given == correct, nil

	default:
		return false, nil
	}
}

func percentage(score float64, totalMarks int) float64 {
	if totalMarks <= 0 {
		return 0
	}
	return score / float64(totalMarks) * 100
}

// recomputeAnalytics rebuilds the quiz's analytics row from scratch over all
// fully graded submissions. Running it after every grading event keeps the
// row consistent without incremental bookkeeping.
func recomputeAnalytics(ctx context.Context, repo repositories.Repository, quiz *models.Quiz) error {
	submissions, err := repo.Submission().ListGradedByQuiz(ctx, nil, quiz.ID)
	if err != nil {
		return err
	}

	graded := submissions[:0]
	for _, sub := range submissions {
		if sub.Status == models.SubmissionGraded {
			graded = append(graded, sub)
		}
	}

	analytics := &models.QuizAnalytics{
		QuizID:    quiz.ID,
		UpdatedAt: time.Now().UTC(),
	}

	if len(graded) > 0 {
		analytics.TotalSubmissions = len(graded)
		analytics.LowestScore = graded[0].Percentage
		sum := 0.0
		for _, sub := range graded {
			sum += sub.Percentage
			if sub.Percentage > analytics.HighestScore {
				analytics.HighestScore = sub.Percentage
			}
			if sub.Percentage < analytics.LowestScore {
				analytics.LowestScore = sub.Percentage
			}
		}
		analytics.AverageScore = sum / float64(len(graded))
	}

	stats := buildQuestionStats(quiz, graded)
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal question stats: %w", err)
	}
	analytics.QuestionStats = datatypes.JSON(statsJSON)

	return repo.Quiz().UpsertAnalytics(ctx, nil, analytics)
}

// buildQuestionStats aggregates per-question correctness and timing over the
// answers that were actually given for each index.
func buildQuestionStats(quiz *models.Quiz, submissions []*models.Submission) []models.QuestionStat {
	stats := make([]models.QuestionStat, len(quiz.Questions))
	timeTotals := make([]float64, len(quiz.Questions))

	for i := range stats {
		stats[i].QuestionIndex = i
	}

	for _, sub := range submissions {
		for _, ans := range sub.Answers {
			if ans.QuestionIndex < 0 || ans.QuestionIndex >= len(stats) {
				continue
			}
			stats[ans.QuestionIndex].TotalAttempts++
			if ans.IsCorrect {
				stats[ans.QuestionIndex].CorrectAnswers++
			}
			timeTotals[ans.QuestionIndex] += float64(ans.TimeSpent)
		}
	}

	for i := range stats {
		if stats[i].TotalAttempts > 0 {
			stats[i].AverageTime = timeTotals[i] / float64(stats[i].TotalAttempts)
		}
	}
	return stats
}
