package auth

import (
	"context"

	"minitter/domain"
)

const (
	userKey privateKey = "user"
)

type privateKey string

// SetUser returns a copy of ctx carrying the authenticated user.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the authenticated user stored by SetUser, or nil for anonymous requests.
func GetUser(ctx context.Context) *domain.User {
	if temp := ctx.Value(userKey); temp != nil {
		if user, ok := temp.(*domain.User); ok {
			return user
		}
	}
	return nil
}

// UserID returns the ID of the authenticated user, or 0 for anonymous requests.
func UserID(ctx context.Context) int {
	if user := GetUser(ctx); user != nil {
		return user.ID
	}
	return 0
}
