package domain

import (
	"context"
	"time"
)

// Follow represents a self-referential many-to-may relationship between two users.
// A Follow is created when one user decides to follow another user.
// The FollowerID is the ID of the user that follows, and the FollowedID is the ID of the
// user that is being followed. In the database Follows are stored within the follows-table,
// where each (follower, followed) pair exists at most once.
type Follow struct {
	ID         int       `json:"id"`
	FollowerID int       `json:"follower_id" gorm:"notNull;uniqueIndex:idx_follows_pair;index"`
	Follower   User      `json:"follower"`
	FollowedID int       `json:"followed_id" gorm:"notNull;uniqueIndex:idx_follows_pair;index"`
	Followed   User      `json:"followed"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`

	// AlreadyFollowing is true when Follow found the edge in place instead of creating it.
	AlreadyFollowing bool `json:"already_following" gorm:"-"`
	// NotFollowing is true when Unfollow found no edge to remove.
	NotFollowing     bool `json:"not_following" gorm:"-"`
}

// FollowService is a set of methods to manipulate and work with the Follow model.
type FollowService interface {
	Follow(ctx context.Context, followerID int, username string) (*Follow, error)
	Unfollow(ctx context.Context, followerID int, username string) (*Follow, error)
	Following(ctx context.Context, username string) ([]User, error)
	Followers(ctx context.Context, username string) ([]User, error)
	CountFollowing(ctx context.Context, userID int) (int, error)
	CountFollowers(ctx context.Context, userID int) (int, error)
	IsFollowing(ctx context.Context, followerID, followedID int) (bool, error)
}
