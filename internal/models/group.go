package models

import (
	"time"

	"gorm.io/gorm"
)

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

const (
	MinGroupMembers = 1
	MaxGroupMembers = 500
)

type Group struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:100;index" validate:"required,min=1,max=100"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	CreatedBy   string  `json:"created_by" gorm:"not null;index;size:255"`
	MaxMembers  int     `json:"max_members" gorm:"not null;default:100" validate:"min=1,max=500"`
	IsActive    bool    `json:"is_active" gorm:"not null;default:true;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Settings GroupSettings `json:"settings" gorm:"foreignKey:GroupID"`
	Members  []GroupMember `json:"members" gorm:"foreignKey:GroupID"`
	Creator  User          `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	MemberCount int `json:"member_count" gorm:"-"`
}

// GroupMember is one membership row keyed by (group_id, user_id). The unique
// index is the invariant that a user holds at most one membership per group.
type GroupMember struct {
	ID       uint       `json:"id" gorm:"primaryKey"`
	GroupID  uint       `json:"group_id" gorm:"not null;uniqueIndex:idx_group_member"`
	UserID   string     `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_group_member;index"`
	Role     MemberRole `json:"role" gorm:"not null;default:member"`
	JoinedAt time.Time  `json:"joined_at" gorm:"not null"`

	// Relations
	Group Group `json:"-" gorm:"foreignKey:GroupID"`
	User  User  `json:"user" gorm:"foreignKey:UserID"`
}

type GroupSettings struct {
	GroupID   uint      `json:"group_id" gorm:"primaryKey;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`

	AllowStudentMessages bool `json:"allow_student_messages" gorm:"not null;default:true"`
	AllowFileUploads     bool `json:"allow_file_uploads" gorm:"not null;default:true"`
	AllowQuizCreation    bool `json:"allow_quiz_creation" gorm:"not null;default:true"`
}

func (Group) TableName() string {
	return "groups"
}

func (GroupMember) TableName() string {
	return "group_members"
}

func (GroupSettings) TableName() string {
	return "group_settings"
}

// IsGroupAdmin reports whether the membership carries group admin rights.
func (m *GroupMember) IsGroupAdmin() bool {
	return m != nil && m.Role == MemberRoleAdmin
}
