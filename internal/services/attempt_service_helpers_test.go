package services

import (
	"testing"

	"gorm.io/datatypes"

	"github.com/edustream/groupchat-service/internal/models"
)

func quizWithQuestions() *models.Quiz {
	return &models.Quiz{
		ID:         1,
		TotalMarks: 10,
		Settings: models.QuizSettings{
			AllowRetakes: true,
			MaxAttempts:  3,
		},
		Questions: []models.QuizQuestion{
			{
				Order:         0,
				Text:          "Which planet is closest to the sun?",
				Type:          models.MultipleChoice,
				Options:       datatypes.JSON(`["Mercury","Venus","Mars"]`),
				CorrectAnswer: datatypes.JSON(`"Mercury"`),
				Marks:         3,
			},
			{
				Order:         1,
				Text:          "Water boils at 100C at sea level.",
				Type:          models.TrueFalse,
				CorrectAnswer: datatypes.JSON(`true`),
				Marks:         2,
			},
			{
				Order:         2,
				Text:          "Name the largest ocean.",
				Type:          models.ShortAnswer,
				CorrectAnswer: datatypes.JSON(`"Pacific"`),
				Marks:         2,
			},
			{
				Order: 3,
				Text:  "Explain the water cycle.",
				Type:  models.Essay,
				Marks: 3,
			},
		},
	}
}

func TestIsAnswerCorrect(t *testing.T) {
	quiz := quizWithQuestions()

	tests := []struct {
		name     string
		question *models.QuizQuestion
		answer   interface{}
		want     bool
	}{
		{name: "multiple choice exact match", question: &quiz.Questions[0], answer: "Mercury", want: true},
		{name: "multiple choice wrong option", question: &quiz.Questions[0], answer: "Venus", want: false},
		{name: "multiple choice is case sensitive", question: &quiz.Questions[0], answer: "mercury", want: false},
		{name: "true false match", question: &quiz.Questions[1], answer: true, want: true},
		{name: "true false mismatch", question: &quiz.Questions[1], answer: false, want: false},
		{name: "true false wrong type", question: &quiz.Questions[1], answer: "true", want: false},
		{name: "short answer exact", question: &quiz.Questions[2], answer: "Pacific", want: true},
		{name: "short answer ignores case", question: &quiz.Questions[2], answer: "pacific", want: true},
		{name: "short answer ignores surrounding whitespace", question: &quiz.Questions[2], answer: "  Pacific  ", want: true},
		{name: "short answer wrong", question: &quiz.Questions[2], answer: "Atlantic", want: false},
		{name: "nil answer", question: &quiz.Questions[0], answer: nil, want: false},
		{name: "essay never auto-correct", question: &quiz.Questions[3], answer: "anything", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := isAnswerCorrect(tt.question, tt.answer)
			if err != nil {
				t.Fatalf("isAnswerCorrect returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("isAnswerCorrect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGradeAnswers(t *testing.T) {
	quiz := quizWithQuestions()

	t.Run("mixed answers", func(t *testing.T) {
		answers := []SubmitAnswerRequest{
			{QuestionIndex: 0, Answer: "Mercury"},
			{QuestionIndex: 1, Answer: false},
			{QuestionIndex: 2, Answer: " pacific "},
			{QuestionIndex: 3, Answer: "Evaporation, condensation, precipitation."},
		}

		rows, score, pendingManual, err := gradeAnswers(quiz, 42, answers)
		if err != nil {
			t.Fatalf("gradeAnswers returned error: %v", err)
		}
		if len(rows) != 4 {
			t.Fatalf("expected 4 answer rows, got %d", len(rows))
		}
		if score != 5 {
			t.Errorf("expected auto score 5, got %v", score)
		}
		if !pendingManual {
			t.Error("expected pendingManual for essay answer")
		}
		if !rows[0].IsCorrect || rows[0].MarksObtained != 3 {
			t.Errorf("question 0 should be correct with 3 marks, got %+v", rows[0])
		}
		if rows[1].IsCorrect {
			t.Error("question 1 should be incorrect")
		}
		if rows[3].IsCorrect || rows[3].MarksObtained != 0 {
			t.Errorf("essay answer must not be auto-graded, got %+v", rows[3])
		}
	})

	t.Run("deterministic across runs", func(t *testing.T) {
		answers := []SubmitAnswerRequest{
			{QuestionIndex: 0, Answer: "Mercury"},
			{QuestionIndex: 1, Answer: true},
			{QuestionIndex: 2, Answer: "PACIFIC"},
		}

		_, first, _, err := gradeAnswers(quiz, 1, answers)
		if err != nil {
			t.Fatalf("gradeAnswers returned error: %v", err)
		}
		for i := 0; i < 10; i++ {
			_, score, _, err := gradeAnswers(quiz, 1, answers)
			if err != nil {
				t.Fatalf("gradeAnswers returned error: %v", err)
			}
			if score != first {
				t.Fatalf("scoring not deterministic: run %d got %v, first run got %v", i, score, first)
			}
		}
		if first != 7 {
			t.Errorf("expected score 7, got %v", first)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		answers := []SubmitAnswerRequest{{QuestionIndex: 9, Answer: "x"}}
		if _, _, _, err := gradeAnswers(quiz, 1, answers); !IsConflictError(err) {
			t.Errorf("expected conflict error for out-of-range index, got %v", err)
		}
	})

	t.Run("duplicate index", func(t *testing.T) {
		answers := []SubmitAnswerRequest{
			{QuestionIndex: 0, Answer: "Mercury"},
			{QuestionIndex: 0, Answer: "Venus"},
		}
		if _, _, _, err := gradeAnswers(quiz, 1, answers); !IsConflictError(err) {
			t.Errorf("expected conflict error for duplicate index, got %v", err)
		}
	})

	t.Run("no pending grading without essay answers", func(t *testing.T) {
		answers := []SubmitAnswerRequest{
			{QuestionIndex: 0, Answer: "Mercury"},
			{QuestionIndex: 1, Answer: true},
		}
		_, _, pendingManual, err := gradeAnswers(quiz, 1, answers)
		if err != nil {
			t.Fatalf("gradeAnswers returned error: %v", err)
		}
		if pendingManual {
			t.Error("unanswered essay questions should not require manual grading")
		}
	})
}

func TestEffectiveMaxAttempts(t *testing.T) {
	tests := []struct {
		name string
		quiz models.Quiz
		want int
	}{
		{
			name: "retakes disabled caps at one",
			quiz: models.Quiz{Settings: models.QuizSettings{AllowRetakes: false, MaxAttempts: 5}},
			want: 1,
		},
		{
			name: "retakes enabled uses configured cap",
			quiz: models.Quiz{Settings: models.QuizSettings{AllowRetakes: true, MaxAttempts: 3}},
			want: 3,
		},
		{
			name: "zero max attempts falls back to one",
			quiz: models.Quiz{Settings: models.QuizSettings{AllowRetakes: true, MaxAttempts: 0}},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := effectiveMaxAttempts(&tt.quiz); got != tt.want {
				t.Errorf("effectiveMaxAttempts() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	if got := percentage(5, 10); got != 50 {
		t.Errorf("percentage(5, 10) = %v, want 50", got)
	}
	if got := percentage(3, 0); got != 0 {
		t.Errorf("percentage with zero total must be 0, got %v", got)
	}
}

func TestQuestionsForAttempt(t *testing.T) {
	quiz := quizWithQuestions()

	t.Run("keeps canonical indexes under shuffle", func(t *testing.T) {
		quiz.Settings.ShuffleQuestions = true
		quiz.Settings.ShuffleOptions = true

		questions := questionsForAttempt(quiz)
		if len(questions) != 4 {
			t.Fatalf("expected 4 questions, got %d", len(questions))
		}

		seen := make(map[int]QuestionForAttempt)
		for _, q := range questions {
			seen[q.Index] = q
		}
		for i, original := range quiz.Questions {
			got, ok := seen[i]
			if !ok {
				t.Fatalf("canonical index %d missing from attempt payload", i)
			}
			if got.Text != original.Text {
				t.Errorf("index %d maps to wrong question text", i)
			}
		}
	})

	t.Run("multiple choice options survive shuffling", func(t *testing.T) {
		questions := questionsForAttempt(quiz)
		for _, q := range questions {
			if q.Index != 0 {
				continue
			}
			if len(q.Options) != 3 {
				t.Fatalf("expected 3 options, got %d", len(q.Options))
			}
			found := make(map[string]bool)
			for _, opt := range q.Options {
				found[opt] = true
			}
			for _, want := range []string{"Mercury", "Venus", "Mars"} {
				if !found[want] {
					t.Errorf("option %q missing after shuffle", want)
				}
			}
		}
	})
}

func TestBuildQuestionStats(t *testing.T) {
	quiz := quizWithQuestions()
	submissions := []*models.Submission{
		{
			Answers: []models.SubmissionAnswer{
				{QuestionIndex: 0, IsCorrect: true, TimeSpent: 10},
				{QuestionIndex: 1, IsCorrect: false, TimeSpent: 20},
			},
		},
		{
			Answers: []models.SubmissionAnswer{
				{QuestionIndex: 0, IsCorrect: false, TimeSpent: 30},
			},
		},
	}

	stats := buildQuestionStats(quiz, submissions)
	if len(stats) != 4 {
		t.Fatalf("expected a stat entry per question, got %d", len(stats))
	}
	if stats[0].TotalAttempts != 2 || stats[0].CorrectAnswers != 1 {
		t.Errorf("question 0 stats wrong: %+v", stats[0])
	}
	if stats[0].AverageTime != 20 {
		t.Errorf("question 0 average time = %v, want 20", stats[0].AverageTime)
	}
	if stats[3].TotalAttempts != 0 {
		t.Errorf("unanswered question must show zero attempts, got %+v", stats[3])
	}
}
