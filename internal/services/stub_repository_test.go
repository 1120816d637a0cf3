package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
)

// stubRepository backs service tests without a database. Each sub-repository
// stub embeds its interface and overrides only the methods a test wires up;
// anything else panics with a nil pointer, pointing straight at the missing
// stub. WithTransaction runs the callback against the stub itself.
type stubRepository struct {
	groups      *stubGroupRepo
	messages    *stubMessageRepo
	quizzes     *stubQuizRepo
	submissions *stubSubmissionRepo
	users       *stubUserRepo
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		groups:      &stubGroupRepo{},
		messages:    &stubMessageRepo{},
		quizzes:     &stubQuizRepo{},
		submissions: &stubSubmissionRepo{},
		users:       &stubUserRepo{},
	}
}

func (r *stubRepository) Group() repositories.GroupRepository {
	return r.groups
}

func (r *stubRepository) Message() repositories.MessageRepository {
	return r.messages
}

func (r *stubRepository) Quiz() repositories.QuizRepository {
	return r.quizzes
}

func (r *stubRepository) Submission() repositories.SubmissionRepository {
	return r.submissions
}

func (r *stubRepository) User() repositories.UserRepository {
	return r.users
}

func (r *stubRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

func (r *stubRepository) Ping(ctx context.Context) error { return nil }
func (r *stubRepository) Close() error                   { return nil }

type stubGroupRepo struct {
	repositories.GroupRepository

	getByIDFn      func(id uint) (*models.Group, error)
	getMemberFn    func(groupID uint, userID string) (*models.GroupMember, error)
	listMembersFn  func(groupID uint) ([]*models.GroupMember, error)
	removeMemberFn func(groupID uint, userID string) error
	updateRoleFn   func(groupID uint, userID string, role models.MemberRole) error

	removed     []string
	roleUpdates []string
}

func (s *stubGroupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Group, error) {
	if s.getByIDFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.getByIDFn(id)
}

func (s *stubGroupRepo) GetMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) (*models.GroupMember, error) {
	if s.getMemberFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.getMemberFn(groupID, userID)
}

func (s *stubGroupRepo) ListMembers(ctx context.Context, tx *gorm.DB, groupID uint) ([]*models.GroupMember, error) {
	if s.listMembersFn == nil {
		return nil, nil
	}
	return s.listMembersFn(groupID)
}

func (s *stubGroupRepo) RemoveMember(ctx context.Context, tx *gorm.DB, groupID uint, userID string) error {
	s.removed = append(s.removed, userID)
	if s.removeMemberFn == nil {
		return nil
	}
	return s.removeMemberFn(groupID, userID)
}

func (s *stubGroupRepo) UpdateMemberRole(ctx context.Context, tx *gorm.DB, groupID uint, userID string, role models.MemberRole) error {
	s.roleUpdates = append(s.roleUpdates, userID)
	if s.updateRoleFn == nil {
		return nil
	}
	return s.updateRoleFn(groupID, userID, role)
}

type stubMessageRepo struct {
	repositories.MessageRepository

	listFn func(groupID uint, filters repositories.MessageFilters) ([]*models.Message, int64, error)
}

func (s *stubMessageRepo) List(ctx context.Context, tx *gorm.DB, groupID uint, filters repositories.MessageFilters) ([]*models.Message, int64, error) {
	if s.listFn == nil {
		return nil, 0, nil
	}
	return s.listFn(groupID, filters)
}

type stubQuizRepo struct {
	repositories.QuizRepository

	getByIDWithDetailsFn func(id uint) (*models.Quiz, error)

	lockCalls int
}

func (s *stubQuizRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	if s.getByIDWithDetailsFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.getByIDWithDetailsFn(id)
}

func (s *stubQuizRepo) LockForSubmit(ctx context.Context, tx *gorm.DB, id uint) error {
	s.lockCalls++
	return nil
}

type stubSubmissionRepo struct {
	repositories.SubmissionRepository

	getByIDFn        func(id uint) (*models.Submission, error)
	getActiveFn      func(quizID uint, userID string) (*models.Submission, error)
	countCompletedFn func(quizID uint, userID string) (int64, error)
	maxAttemptFn     func(quizID uint, userID string) (int, error)
	listByQuizFn     func(quizID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error)

	created *models.Submission
	updated *models.Submission
}

func (s *stubSubmissionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	if s.getByIDFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.getByIDFn(id)
}

func (s *stubSubmissionRepo) GetActive(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.Submission, error) {
	if s.getActiveFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.getActiveFn(quizID, userID)
}

func (s *stubSubmissionRepo) CountCompleted(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error) {
	if s.countCompletedFn == nil {
		return 0, nil
	}
	return s.countCompletedFn(quizID, userID)
}

func (s *stubSubmissionRepo) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int, error) {
	if s.maxAttemptFn == nil {
		return 0, nil
	}
	return s.maxAttemptFn(quizID, userID)
}

func (s *stubSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	s.created = submission
	return nil
}

func (s *stubSubmissionRepo) Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	s.updated = submission
	return nil
}

func (s *stubSubmissionRepo) ListByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	if s.listByQuizFn == nil {
		return nil, 0, nil
	}
	return s.listByQuizFn(quizID, filters)
}

type stubUserRepo struct {
	repositories.UserRepository

	getByIDFn func(id string) (*models.User, error)
}

func (s *stubUserRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	if s.getByIDFn == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.getByIDFn(id)
}
