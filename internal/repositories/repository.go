package repositories

import "context"

// Repository aggregates all entity repositories behind one interface.
type Repository interface {
	// Group domain
	Group() GroupRepository

	// Message domain
	Message() MessageRepository

	// Quiz domain
	Quiz() QuizRepository
	Submission() SubmissionRepository

	// User domain (mirrored from the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
