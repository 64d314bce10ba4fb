package users

import (
	"strings"
	"time"
)

// User is the local account every audit row and owned record points at.
type User struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Username    string    `gorm:"column:username;size:150;not null;uniqueIndex"`
	Email       string    `gorm:"column:email;size:320"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing local users.
func (User) TableName() string {
	return "users"
}

// Identity captures the mapping between a local user and a provider-specific login.
type Identity struct {
	Provider   string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject    string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID     uint      `gorm:"column:user_id;not null;index"`
	User       User      `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
