package crud

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"minitter/domain"
	"minitter/errs"
)

// LikeService manages Likes.
// It implements the domain.LikeService interface.
type LikeService struct {
	likeValidator
}

// likeValidator runs validations on incoming Like data.
// On success, it passes the data on to likeGorm.
// Otherwise, it returns the error of the validation that has failed.
type likeValidator struct {
	likeGorm
}

// likeGorm runs CRUD operations on the database using incoming Like data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type likeGorm struct {
	db *gorm.DB
}

// NewLikeService returns an instance of LikeService.
func NewLikeService(db *gorm.DB) *LikeService {
	return &LikeService{
		likeValidator{
			likeGorm{
				db: db,
			},
		},
	}
}

// Ensure the LikeService struct properly implements the domain.LikeService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.LikeService = &LikeService{}

const (
	msgAlreadyLiked = "Already liked."
	msgNotLiked     = "You have not liked this tweet."
)

// Like makes the user like the tweet. Liking a tweet twice is not an error:
// the result has AlreadyLiked set and the like count stays the same.
func (lv *likeValidator) Like(ctx context.Context, userID, tweetID int) (*domain.LikeResult, error) {
	like := &domain.Like{UserID: userID, TweetID: tweetID}
	err := runLikeValFns(like,
		lv.userIdValid,
		lv.likedTweetExists(ctx))
	if err != nil {
		return nil, err
	}
	created, err := lv.likeGorm.Create(ctx, like)
	if err != nil {
		return nil, err
	}
	count, err := lv.likeGorm.CountByTweetID(ctx, tweetID)
	if err != nil {
		return nil, err
	}
	result := &domain.LikeResult{
		TweetID:   tweetID,
		IsLiked:   true,
		LikeCount: count,
	}
	if !created {
		result.AlreadyLiked = true
		result.Error = msgAlreadyLiked
	}
	return result, nil
}

// Unlike removes the user's like of the tweet. Unliking a tweet that the user
// does not like is not an error: the result has NotLiked set and the like count
// stays the same.
func (lv *likeValidator) Unlike(ctx context.Context, userID, tweetID int) (*domain.LikeResult, error) {
	like := &domain.Like{UserID: userID, TweetID: tweetID}
	err := runLikeValFns(like,
		lv.userIdValid,
		lv.likedTweetExists(ctx))
	if err != nil {
		return nil, err
	}
	deleted, err := lv.likeGorm.Delete(ctx, like)
	if err != nil {
		return nil, err
	}
	count, err := lv.likeGorm.CountByTweetID(ctx, tweetID)
	if err != nil {
		return nil, err
	}
	result := &domain.LikeResult{
		TweetID:   tweetID,
		IsLiked:   false,
		LikeCount: count,
	}
	if !deleted {
		result.NotLiked = true
		result.Error = msgNotLiked
	}
	return result, nil
}

// runLikeValFns runs any number of functions of type likeValFn on the passed in Like object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runLikeValFns(like *domain.Like, fns ...likeValFn) error {
	for _, fn := range fns {
		if err := fn(like); err != nil {
			return err
		}
	}
	return nil
}

// A likeValFn is any function that takes in a pointer to a domain.Like object and returns an error.
type likeValFn func(like *domain.Like) error

// likedTweetExists makes sure that the tweet to be (un)liked actually exists.
func (lv *likeValidator) likedTweetExists(ctx context.Context) likeValFn {
	return func(like *domain.Like) error {
		if like.TweetID <= 0 {
			return errs.Errorf(errs.ENOTFOUND, "The tweet does not exist.")
		}
		return first(lv.db.WithContext(ctx).Where("id = ?", like.TweetID), &domain.Tweet{})
	}
}

// userIdValid ensures that the userId is not empty.
func (lv *likeValidator) userIdValid(like *domain.Like) error {
	if like.UserID <= 0 {
		return errs.UserIdValid
	}
	return nil
}

// LikedTweetIDs returns the IDs of all tweets the given user likes.
func (lg *likeGorm) LikedTweetIDs(ctx context.Context, userID int) (map[int]bool, error) {
	var ids []int
	err := lg.db.WithContext(ctx).
		Model(&domain.Like{}).
		Where("user_id = ?", userID).
		Pluck("tweet_id", &ids).Error
	if err != nil {
		return nil, err
	}
	liked := make(map[int]bool, len(ids))
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}

// CountByTweetID returns how many likes the given tweet has.
func (lg *likeGorm) CountByTweetID(ctx context.Context, tweetID int) (int, error) {
	var count int64
	err := lg.db.WithContext(ctx).Model(&domain.Like{}).Where("tweet_id = ?", tweetID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Create stores the Like unless the user already likes the tweet, in which case
// it returns false. The unique index on (user_id, tweet_id) decides, so concurrent
// likes of the same user end up as a single record.
func (lg *likeGorm) Create(ctx context.Context, like *domain.Like) (bool, error) {
	result := lg.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(like)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete permanently deletes the like of the user for the tweet.
// It reports whether there was one to delete.
func (lg *likeGorm) Delete(ctx context.Context, like *domain.Like) (bool, error) {
	result := lg.db.WithContext(ctx).
		Where("user_id = ? AND tweet_id = ?", like.UserID, like.TweetID).
		Delete(&domain.Like{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
