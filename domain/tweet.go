package domain

import (
	"context"
	"time"
)

// MaxTweetLength is the maximum number of characters (not bytes) of a tweet's content.
const MaxTweetLength = 280

// Tweet is a short text post. It can only be deleted by its author,
// and deleting it removes all of its likes.
type Tweet struct {
	ID      int    `json:"id"`
	UserID  int    `json:"user_id" gorm:"notNull;index"`
	User    User   `json:"user"`
	Content string `json:"content" gorm:"notNull;size:280"`
	Likes   []Like `json:"-" gorm:"constraint:OnDelete:CASCADE"`

	// Derived from the preloaded Likes by SetEngagement.
	LikeCount int  `json:"like_count" gorm:"-"`
	Liked     bool `json:"liked" gorm:"-"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetEngagement sets the tweet's like count and whether the user with
// the given ID likes it. The tweet's Likes must have been preloaded.
func (t *Tweet) SetEngagement(userID int) {
	t.LikeCount = len(t.Likes)
	t.Liked = false
	if userID <= 0 {
		return
	}
	for _, like := range t.Likes {
		if like.UserID == userID {
			t.Liked = true
			return
		}
	}
}

// Page restricts a listing. A Limit of 0 means no limit.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// TweetService is a set of methods to manipulate and work with the Tweet model.
type TweetService interface {
	Create(ctx context.Context, tweet *Tweet) error
	ByID(ctx context.Context, id int) (*Tweet, error)
	All(ctx context.Context, page Page) ([]Tweet, error)
	ByUsername(ctx context.Context, username string, page Page) ([]Tweet, error)
	CountByUserID(ctx context.Context, userID int) (int, error)
	Delete(ctx context.Context, id, requesterID int) error
}
