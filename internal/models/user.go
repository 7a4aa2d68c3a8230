package models

import (
	"time"
)

// Panel roles. The seeded admin account gets RoleAdmin.
const (
	RoleUser      = 1
	RoleSupport   = 2
	RoleModerator = 3
	RoleAdmin     = 4
)

// User represents a panel account.
type User struct {
	ID            uint       `gorm:"column:id;primaryKey" json:"id"`
	UUID          string     `gorm:"column:uuid;size:36;uniqueIndex;not null" json:"uuid"`
	Username      string     `gorm:"column:username;uniqueIndex;size:100;not null" json:"username"`
	Password      string     `gorm:"column:password;size:255;not null" json:"-"`
	Email         string     `gorm:"column:email;size:255;uniqueIndex" json:"email"`
	FirstName     string     `gorm:"column:first_name;size:100" json:"first_name"`
	LastName      string     `gorm:"column:last_name;size:100" json:"last_name"`
	RoleID        int        `gorm:"column:role_id;default:1" json:"role_id"`
	Banned        bool       `gorm:"column:banned;default:false" json:"banned"`
	RememberToken string     `gorm:"column:remember_token;size:255" json:"-"`
	FirstIP       string     `gorm:"column:first_ip;size:50" json:"first_ip"`
	LastIP        string     `gorm:"column:last_ip;size:50" json:"last_ip"`
	LastLogin     *time.Time `gorm:"column:last_login" json:"last_login"`

	// 2FA fields
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:255" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "featherpanel_users"
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.RoleID == RoleAdmin
}

// PreservedUser is the in-memory snapshot of the acting admin captured
// before a fresh restore wipes the database. It is replayed as a fresh
// insert after migrations re-run so the operator's session survives.
type PreservedUser struct {
	Username      string
	Email         string
	Password      string // already hashed
	FirstName     string
	LastName      string
	UUID          string
	RememberToken string
	RoleID        int
	FirstIP       string
	LastIP        string
}

// Preserve captures the identity fields that must survive a fresh restore.
func (u *User) Preserve() PreservedUser {
	return PreservedUser{
		Username:      u.Username,
		Email:         u.Email,
		Password:      u.Password,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		UUID:          u.UUID,
		RememberToken: u.RememberToken,
		RoleID:        RoleAdmin,
		FirstIP:       u.FirstIP,
		LastIP:        u.LastIP,
	}
}

// Restore turns the preserved snapshot back into an insertable user row.
func (p PreservedUser) Restore() User {
	return User{
		UUID:          p.UUID,
		Username:      p.Username,
		Password:      p.Password,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		RoleID:        p.RoleID,
		RememberToken: p.RememberToken,
		FirstIP:       p.FirstIP,
		LastIP:        p.LastIP,
	}
}
