package domain

import (
	"context"
	"time"
)

// User represents a registered account. Username, email and password are fixed
// at signup, only the remember token hash changes afterwards (on sign-in and logout).
// Deleting a user removes their tweets, their likes and every follow edge they are
// part of, in either direction.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username" gorm:"notNull;uniqueIndex"`
	Email    string `json:"-" gorm:"notNull"`

	Password             string `json:"-" gorm:"-"`
	PasswordConfirmation string `json:"-" gorm:"-"`
	PasswordHash         string `json:"-" gorm:"notNull"`
	Remember             string `json:"-" gorm:"-"`
	RememberHash         string `json:"-" gorm:"notNull;uniqueIndex"`

	Tweets    []Tweet  `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Likes     []Like   `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Followers []Follow `json:"-" gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE"`
	Followeds []Follow `json:"-" gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserService is a set of methods to manipulate and work with the User model.
type UserService interface {
	Create(ctx context.Context, user *User) error
	Authenticate(ctx context.Context, username, password string) (*User, error)
	ByID(ctx context.Context, id int) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByRemember(ctx context.Context, token string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id int) error
	MakeRememberToken() (string, error)
}
