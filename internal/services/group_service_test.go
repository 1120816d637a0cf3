package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"gorm.io/gorm"

	"github.com/edustream/groupchat-service/internal/models"
	"github.com/edustream/groupchat-service/internal/validator"
)

func newTestGroupService(repo *stubRepository) *groupService {
	return &groupService{
		repo:      repo,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		validator: validator.New(),
	}
}

// wireGroupFixture points the stub repository at group 1, created by
// "creator", with "creator" and "mod" as admins and "student" as a member.
func wireGroupFixture(repo *stubRepository) {
	members := map[string]*models.GroupMember{
		"creator": {GroupID: 1, UserID: "creator", Role: models.MemberRoleAdmin},
		"mod":     {GroupID: 1, UserID: "mod", Role: models.MemberRoleAdmin},
		"student": {GroupID: 1, UserID: "student", Role: models.MemberRoleMember},
	}
	repo.groups.getByIDFn = func(id uint) (*models.Group, error) {
		return &models.Group{ID: 1, Name: "Physics", CreatedBy: "creator", IsActive: true}, nil
	}
	repo.groups.getMemberFn = func(groupID uint, userID string) (*models.GroupMember, error) {
		if m, ok := members[userID]; ok {
			return m, nil
		}
		return nil, gorm.ErrRecordNotFound
	}
	repo.groups.listMembersFn = func(groupID uint) ([]*models.GroupMember, error) {
		return []*models.GroupMember{members["creator"], members["mod"], members["student"]}, nil
	}
}

func TestGroupCreatorCannotBeRemoved(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		actor   string
		wantErr error
	}{
		{name: "creator cannot leave their own group", target: "creator", actor: "creator", wantErr: ErrGroupCreatorImmutable},
		{name: "another admin cannot remove the creator", target: "creator", actor: "mod", wantErr: ErrGroupCreatorImmutable},
		{name: "a non-creator admin can still be removed", target: "mod", actor: "creator", wantErr: nil},
		{name: "a member can still be removed", target: "student", actor: "mod", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepository()
			wireGroupFixture(repo)
			svc := newTestGroupService(repo)

			err := svc.RemoveMember(context.Background(), 1, tt.target, tt.actor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RemoveMember error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && len(repo.groups.removed) != 0 {
				t.Errorf("no membership row may be deleted, got removals for %v", repo.groups.removed)
			}
			if tt.wantErr == nil && len(repo.groups.removed) != 1 {
				t.Errorf("expected exactly one removal, got %v", repo.groups.removed)
			}
		})
	}
}

func TestGroupCreatorCannotBeDemoted(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		role    models.MemberRole
		actor   string
		wantErr error
	}{
		{name: "demoting the creator is rejected", target: "creator", role: models.MemberRoleMember, actor: "mod", wantErr: ErrGroupCreatorImmutable},
		{name: "creator cannot demote themselves", target: "creator", role: models.MemberRoleMember, actor: "creator", wantErr: ErrGroupCreatorImmutable},
		{name: "re-affirming the creator as admin passes", target: "creator", role: models.MemberRoleAdmin, actor: "mod", wantErr: nil},
		{name: "another admin can be demoted while two remain", target: "mod", role: models.MemberRoleMember, actor: "creator", wantErr: nil},
		{name: "a member can be promoted", target: "student", role: models.MemberRoleAdmin, actor: "creator", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepository()
			wireGroupFixture(repo)
			svc := newTestGroupService(repo)

			err := svc.UpdateMemberRole(context.Background(), 1, tt.target, tt.role, tt.actor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("UpdateMemberRole error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && len(repo.groups.roleUpdates) != 0 {
				t.Errorf("no role row may be written, got updates for %v", repo.groups.roleUpdates)
			}
		})
	}
}
