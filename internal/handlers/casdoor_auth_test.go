package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/repositories"
	"github.com/edustream/groupchat-service/internal/utils"
)

type stubUserRepository struct {
	repositories.UserRepository

	stored   *models.User
	upserted *models.User
}

func (s *stubUserRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	if s.stored == nil || s.stored.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.stored, nil
}

func (s *stubUserRepository) Upsert(ctx context.Context, tx *gorm.DB, user *models.User) error {
	s.upserted = user
	return nil
}

func newTestAuthMiddleware(userRepo repositories.UserRepository) *CasdoorAuthMiddleware {
	return &CasdoorAuthMiddleware{
		userRepo: userRepo,
		logger:   utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func TestSyncUserRejectsDeactivatedAccounts(t *testing.T) {
	tests := []struct {
		name    string
		claims  casdoorsdk.Claims
		stored  *models.User
		wantErr bool
	}{
		{
			name:    "forbidden account in claims",
			claims:  casdoorsdk.Claims{User: casdoorsdk.User{Id: "u1", IsForbidden: true}},
			wantErr: true,
		},
		{
			name:    "deleted account in claims",
			claims:  casdoorsdk.Claims{User: casdoorsdk.User{Id: "u1", IsDeleted: true}},
			wantErr: true,
		},
		{
			name:    "locally deactivated mirror row",
			claims:  casdoorsdk.Claims{User: casdoorsdk.User{Id: "u1", DisplayName: "User One", Email: "u1@example.com"}},
			stored:  &models.User{ID: "u1", IsActive: false},
			wantErr: true,
		},
		{
			name:    "missing user id",
			claims:  casdoorsdk.Claims{},
			wantErr: true,
		},
		{
			name:   "active account with mirror row",
			claims: casdoorsdk.Claims{User: casdoorsdk.User{Id: "u1", DisplayName: "User One", Email: "u1@example.com"}},
			stored: &models.User{ID: "u1", IsActive: true},
		},
		{
			name:   "first login without mirror row",
			claims: casdoorsdk.Claims{User: casdoorsdk.User{Id: "u1", DisplayName: "User One", Email: "u1@example.com"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubUserRepository{stored: tt.stored}
			cam := newTestAuthMiddleware(repo)

			user, err := cam.syncUser(context.Background(), &tt.claims)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected syncUser to reject the account")
				}
				if repo.upserted != nil {
					t.Error("a rejected account must not be written to the mirror")
				}
				return
			}
			if err != nil {
				t.Fatalf("syncUser returned error: %v", err)
			}
			if user == nil || user.ID != "u1" {
				t.Fatalf("unexpected user: %+v", user)
			}
			if repo.upserted == nil {
				t.Fatal("expected the mirror row to be upserted")
			}
			if !repo.upserted.IsActive {
				t.Error("synced user must be active")
			}
			if repo.upserted.FullName != "User One" {
				t.Errorf("full name = %q, want %q", repo.upserted.FullName, "User One")
			}
		})
	}
}

func TestMapCasdoorRole(t *testing.T) {
	tests := []struct {
		casdoorType string
		want        models.UserRole
	}{
		{"admin", models.RoleAdmin},
		{"Teacher", models.RoleAdmin},
		{"instructor", models.RoleAdmin},
		{"normal-user", models.RoleStudent},
		{"", models.RoleStudent},
	}

	for _, tt := range tests {
		if got := mapCasdoorRole(tt.casdoorType); got != tt.want {
			t.Errorf("mapCasdoorRole(%q) = %v, want %v", tt.casdoorType, got, tt.want)
		}
	}
}
