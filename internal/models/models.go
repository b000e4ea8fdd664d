package models

import (
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleBanned    Role = "banned"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin, RoleBanned:
		return true
	}
	return false
}

// IsStaff reports whether r may use the admin API.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleModerator
}

type User struct {
	gorm.Model
	TelegramID int64 `gorm:"uniqueIndex"`
	Username   string
	FirstName  string
	LastName   string
	FullName   string
	PhotoURL   string
	Bio        string
	Role       Role `gorm:"default:user;index"`
	IsVerified bool
	Badges     []Badge
}

// Like is a one-directional swipe right.
type Like struct {
	gorm.Model
	LikerID uint `gorm:"uniqueIndex:idx_like_pair"`
	LikedID uint `gorm:"uniqueIndex:idx_like_pair;index"`
	IsSuper bool
}

// Match is stored once per pair with User1ID < User2ID.
type Match struct {
	gorm.Model
	User1ID uint `gorm:"uniqueIndex:idx_match_pair"`
	User2ID uint `gorm:"uniqueIndex:idx_match_pair;index"`
}

type Report struct {
	gorm.Model
	ReporterID     uint `gorm:"index"`
	ReportedUserID uint `gorm:"index"`
	Reason         string
}

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

type Ticket struct {
	gorm.Model
	Ref         string `gorm:"uniqueIndex"` // public reference shown to the author
	AuthorID    uint   `gorm:"index"`
	Title       string
	Description string
	Status      TicketStatus `gorm:"default:open;index"`
	Answer      string
}

type Badge struct {
	gorm.Model
	UserID uint `gorm:"index"`
	Name   string
}
