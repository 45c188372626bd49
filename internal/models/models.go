package models

import (
	"time"
)

// Status is the moderation state of a confession.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// DefaultNickname is stored when a submitter leaves the nickname empty.
const DefaultNickname = "Anonymous"

// Confession represents a single anonymous post.
type Confession struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Category     string    `gorm:"not null" json:"category"`
	Nickname     string    `gorm:"default:Anonymous" json:"nickname"`
	Status       Status    `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	Likes        int       `gorm:"not null;default:0" json:"likes"`
	ReportsCount int       `gorm:"not null;default:0" json:"reports_count"`
	Comments     []Comment `gorm:"foreignKey:ConfessionID;constraint:OnDelete:CASCADE" json:"-"` // Has-many, removed with the parent
}

// Comment is a reply attached to a confession.
type Comment struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	ConfessionID uint      `gorm:"not null;index" json:"confession_id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Nickname     string    `gorm:"default:Anonymous" json:"nickname"`
	CreatedAt    time.Time `json:"created_at"`
}
