package users

import "time"

// Account is a vault login with a bcrypt password hash.
type Account struct {
	ID           string     `gorm:"column:id;primaryKey;size:190"`
	Email        string     `gorm:"column:email;size:320;not null;uniqueIndex"`
	DisplayName  string     `gorm:"column:display_name;size:320"`
	PasswordHash string     `gorm:"column:password_hash;size:100;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing accounts.
func (Account) TableName() string {
	return "user_accounts"
}
