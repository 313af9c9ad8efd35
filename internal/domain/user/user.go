package user

import (
	"time"

	"github.com/google/uuid"
)

// Roles. Arbiters form the eligibility pool for dispute committees.
const (
	RoleEmployer   = "employer"
	RoleFreelancer = "freelancer"
	RoleArbiter    = "arbiter"
)

type User struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	FullName     string `gorm:"column:full_name" json:"full_name,omitempty"`

	WalletAddress string `gorm:"column:wallet_address;uniqueIndex" json:"wallet_address,omitempty"`
	Role          string `gorm:"column:role;not null;index" json:"role"`

	// Active arbiters are eligible for committee draws.
	Active bool `gorm:"column:active;not null;default:true" json:"active"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "users" }
