package domain

import (
	"context"
	"time"
)

// Like represents a many-to-many relationship between a User and a Tweet.
// A Like is created when a user decides to like a tweet. It's destroyed when
// a user decides to unlike a previously liked tweet, or when the tweet gets deleted.
type Like struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id" gorm:"notNull;uniqueIndex:idx_likes_pair;index"`
	TweetID   int       `json:"tweet_id" gorm:"notNull;uniqueIndex:idx_likes_pair;index"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeResult is what liking or unliking a tweet returns. Repeating either
// operation is not an error: AlreadyLiked or NotLiked is set instead and
// LikeCount is left as it was.
type LikeResult struct {
	TweetID      int    `json:"tweet_id"`
	IsLiked      bool   `json:"is_liked"`
	LikeCount    int    `json:"like_count"`
	AlreadyLiked bool   `json:"already_liked,omitempty"`
	NotLiked     bool   `json:"not_liked,omitempty"`
	Error        string `json:"error,omitempty"`
}

// LikeService is a set of methods to manipulate and work with the Like model.
type LikeService interface {
	Like(ctx context.Context, userID, tweetID int) (*LikeResult, error)
	Unlike(ctx context.Context, userID, tweetID int) (*LikeResult, error)
	LikedTweetIDs(ctx context.Context, userID int) (map[int]bool, error)
}
