package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Global roles. A user holds exactly one of them; tenant scoping comes from
// Member rows.
const (
	ROLE_ADMIN    = "ADMIN"
	ROLE_OWNER    = "OWNER"
	ROLE_PROVIDER = "PROVIDER"
	ROLE_CLIENT   = "CLIENT"
)

const MinPasswordLength = 8

type User struct {
	ID                  string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name                string    `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email               string    `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password            string    `gorm:"type:text" json:"-"`
	Role                string    `gorm:"type:varchar(20);not null;default:'CLIENT';index" json:"role" validate:"oneof=ADMIN OWNER PROVIDER CLIENT"`
	NeedsPasswordChange bool      `gorm:"default:false" json:"needsPasswordChange"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = ROLE_CLIENT
	}
	return nil
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewUser builds a validated user. An empty password leaves the account
// without local credentials.
func NewUser(name, email, password, role string) (*User, error) {
	u := &User{
		Name:  strings.TrimSpace(name),
		Email: NormalizeEmail(email),
		Role:  role,
	}
	if u.Role == "" {
		u.Role = ROLE_CLIENT
	}
	if password != "" {
		if err := u.SetPassword(password); err != nil {
			return nil, err
		}
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	if u.Password == "" {
		return false
	}
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == ROLE_ADMIN
}

// PromotionFor returns the role a user ends up with after being granted
// target. Admins and owners are never demoted by a tenant assignment.
func (u *User) PromotionFor(target string) string {
	switch u.Role {
	case ROLE_ADMIN:
		return ROLE_ADMIN
	case ROLE_OWNER:
		if target == ROLE_PROVIDER || target == ROLE_CLIENT {
			return ROLE_OWNER
		}
	case ROLE_PROVIDER:
		if target == ROLE_CLIENT {
			return ROLE_PROVIDER
		}
	}
	return target
}
