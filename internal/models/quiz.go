package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	ShortAnswer    QuestionType = "short-answer"
	TrueFalse      QuestionType = "true-false"
	Essay          QuestionType = "essay"
)

// IsAutoGradeable reports whether scoring can be computed without a human.
func (t QuestionType) IsAutoGradeable() bool {
	return t != Essay
}

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in-progress"
	SubmissionSubmitted  SubmissionStatus = "submitted"
	SubmissionGraded     SubmissionStatus = "graded"
)

type Quiz struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	GroupID     uint       `json:"group_id" gorm:"not null;index"`
	CreatedBy   string     `json:"created_by" gorm:"not null;index;size:255"`
	Title       string     `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description *string    `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Deadline    *time.Time `json:"deadline"`
	IsActive    bool       `json:"is_active" gorm:"not null;default:true;index"`

	// Derived: sum of question marks, recomputed whenever questions change.
	TotalMarks int `json:"total_marks" gorm:"not null;default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Settings    QuizSettings   `json:"settings" gorm:"foreignKey:QuizID"`
	Questions   []QuizQuestion `json:"questions" gorm:"foreignKey:QuizID"`
	Submissions []Submission   `json:"submissions,omitempty" gorm:"foreignKey:QuizID"`
	Analytics   *QuizAnalytics `json:"analytics,omitempty" gorm:"foreignKey:QuizID"`
	Creator     User           `json:"creator" gorm:"foreignKey:CreatedBy"`
}

type QuizQuestion struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	QuizID uint `json:"quiz_id" gorm:"not null;index"`
	Order  int  `json:"order" gorm:"not null"`

	Text string       `json:"question" gorm:"type:text;not null" validate:"required"`
	Type QuestionType `json:"type" gorm:"not null" validate:"required,oneof=multiple-choice short-answer true-false essay"`

	// Options apply to multiple-choice only; stored as a JSON string array.
	Options datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"`

	// CorrectAnswer is absent for essay questions. Stored as JSON so the
	// payload shape can follow the question type (string, bool).
	CorrectAnswer datatypes.JSON `json:"correct_answer,omitempty" gorm:"type:jsonb"`

	Explanation *string `json:"explanation,omitempty" gorm:"type:text"`
	Marks       int     `json:"marks" gorm:"not null;default:1" validate:"min=0"`
	TimeLimit   *int    `json:"time_limit"` // seconds, advisory only
}

type QuizSettings struct {
	QuizID    uint      `json:"quiz_id" gorm:"primaryKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`

	ShuffleQuestions bool `json:"shuffle_questions" gorm:"not null;default:false"`
	ShuffleOptions   bool `json:"shuffle_options" gorm:"not null;default:false"`
	ShowResults      bool `json:"show_results" gorm:"not null;default:true"`
	AllowRetakes     bool `json:"allow_retakes" gorm:"not null;default:false"`
	TimeLimit        *int `json:"time_limit"` // minutes, advisory only
	MaxAttempts      int  `json:"max_attempts" gorm:"not null;default:1" validate:"min=1"`
}

// Submission is one user's run through a quiz. Rows are keyed by
// (quiz_id, user_id, attempt_number) so concurrent writers never contend on an
// embedded list; attempt creation is serialized per quiz with a row lock.
type Submission struct {
	ID            uint             `json:"id" gorm:"primaryKey"`
	QuizID        uint             `json:"quiz_id" gorm:"not null;uniqueIndex:idx_quiz_user_attempt"`
	UserID        string           `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_quiz_user_attempt;index"`
	AttemptNumber int              `json:"attempt_number" gorm:"not null;uniqueIndex:idx_quiz_user_attempt"`
	Status        SubmissionStatus `json:"status" gorm:"not null;default:in-progress;index"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeSpent   int        `json:"time_spent"` // seconds, client-reported

	TotalScore float64 `json:"total_score"`
	Percentage float64 `json:"percentage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz    Quiz               `json:"-" gorm:"foreignKey:QuizID"`
	User    User               `json:"user" gorm:"foreignKey:UserID"`
	Answers []SubmissionAnswer `json:"answers" gorm:"foreignKey:SubmissionID"`
}

type SubmissionAnswer struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	SubmissionID uint `json:"submission_id" gorm:"not null;uniqueIndex:idx_submission_question"`

	// QuestionIndex is the zero-based position in the quiz's ordered
	// question list at submission time.
	QuestionIndex int `json:"question_index" gorm:"not null;uniqueIndex:idx_submission_question"`

	Answer    datatypes.JSON `json:"answer" gorm:"type:jsonb"`
	TimeSpent int            `json:"time_spent"` // seconds

	// Grading
	IsCorrect     bool    `json:"is_correct"`
	MarksObtained float64 `json:"marks_obtained"`

	// Manual grading metadata, set for essay answers only.
	GradedBy *string    `json:"graded_by,omitempty" gorm:"size:255"`
	GradedAt *time.Time `json:"graded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuizAnalytics is recomputed from scratch over graded submissions after every
// grading event.
type QuizAnalytics struct {
	QuizID    uint      `json:"quiz_id" gorm:"primaryKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	UpdatedAt time.Time `json:"updated_at"`

	TotalSubmissions int     `json:"total_submissions"`
	AverageScore     float64 `json:"average_score"` // over percentage
	HighestScore     float64 `json:"highest_score"`
	LowestScore      float64 `json:"lowest_score"`

	// QuestionStats is a JSON array of per-question aggregates, indexed by
	// question position.
	QuestionStats datatypes.JSON `json:"question_stats" gorm:"type:jsonb"`
}

// QuestionStat is one element of QuizAnalytics.QuestionStats, aggregated only
// over submissions that answered that question index.
type QuestionStat struct {
	QuestionIndex  int     `json:"question_index"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalAttempts  int     `json:"total_attempts"`
	AverageTime    float64 `json:"average_time"` // seconds
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

func (QuizSettings) TableName() string {
	return "quiz_settings"
}

func (Submission) TableName() string {
	return "quiz_submissions"
}

func (SubmissionAnswer) TableName() string {
	return "quiz_submission_answers"
}

func (QuizAnalytics) TableName() string {
	return "quiz_analytics"
}

// IsOpen reports whether the quiz currently accepts new attempts.
func (q *Quiz) IsOpen(now time.Time) bool {
	if !q.IsActive {
		return false
	}
	if q.Deadline != nil && now.After(*q.Deadline) {
		return false
	}
	return true
}
