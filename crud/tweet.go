package crud

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"minitter/domain"
	"minitter/errs"
)

// TweetService manages Tweets.
// It implements the domain.TweetService interface.
type TweetService struct {
	tweetValidator
}

// tweetValidator runs validations on incoming Tweet data.
// On success, it passes the data on to tweetGorm.
// Otherwise, it returns the error of the validation that has failed.
type tweetValidator struct {
	tweetGorm
}

// tweetGorm runs CRUD operations on the database using incoming Tweet data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type tweetGorm struct {
	db *gorm.DB
}

// NewTweetService returns an instance of TweetService.
func NewTweetService(db *gorm.DB) *TweetService {
	return &TweetService{
		tweetValidator{
			tweetGorm{
				db: db,
			},
		},
	}
}

// Ensure the TweetService struct properly implements the domain.TweetService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.TweetService = &TweetService{}

// Create runs validations needed for creating new Tweet database records.
func (tv *tweetValidator) Create(ctx context.Context, tweet *domain.Tweet) error {
	err := runTweetValFns(tweet,
		tv.userIdValid,
		tv.contentNormalize,
		tv.contentLength)
	if err != nil {
		return err
	}
	return tv.tweetGorm.Create(ctx, tweet)
}

// Delete deletes the tweet with the given ID if the requester is its author.
// It returns errs.ENOTFOUND if there is no such tweet, and errs.EFORBIDDEN if
// the requester is somebody else.
func (tv *tweetValidator) Delete(ctx context.Context, id, requesterID int) error {
	tweet := &domain.Tweet{ID: id}
	if err := runTweetValFns(tweet, tv.idValid); err != nil {
		return err
	}
	tweet, err := tv.tweetGorm.byID(ctx, id)
	if err != nil {
		return err
	}
	if tweet.UserID != requesterID {
		return errs.Errorf(errs.EFORBIDDEN, "You are not allowed to delete this tweet.")
	}
	return tv.tweetGorm.Delete(ctx, tweet)
}

// runTweetValFns runs any number of functions of type tweetValFn on the passed in Tweet object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runTweetValFns(tweet *domain.Tweet, fns ...tweetValFn) error {
	for _, fn := range fns {
		if err := fn(tweet); err != nil {
			return err
		}
	}
	return nil
}

// A tweetValFn is any function that takes in a pointer to a domain.Tweet object and returns an error.
type tweetValFn = func(tweet *domain.Tweet) error

// contentNormalize trims the whitespaces surrounding the Tweet's content.
func (tv *tweetValidator) contentNormalize(tweet *domain.Tweet) error {
	tweet.Content = strings.TrimSpace(tweet.Content)
	return nil
}

// contentLength makes sure that the Tweet's content is neither empty
// nor longer than domain.MaxTweetLength characters.
func (tv *tweetValidator) contentLength(tweet *domain.Tweet) error {
	return errs.Validation(checkForm(tweetForm{Content: tweet.Content}))
}

// idValid makes sure that the passed in ID of a Tweet to be deleted is greater than 0.
func (tv *tweetValidator) idValid(tweet *domain.Tweet) error {
	if tweet.ID <= 0 {
		return errs.Errorf(errs.ENOTFOUND, "The tweet does not exist.")
	}
	return nil
}

// userIdValid ensures that the userId is not empty.
func (tv *tweetValidator) userIdValid(tweet *domain.Tweet) error {
	if tweet.UserID <= 0 {
		return errs.UserIdValid
	}
	return nil
}

// All retrieves the feed: all tweets, newest first, along with their authors and likes.
func (tg *tweetGorm) All(ctx context.Context, page domain.Page) ([]domain.Tweet, error) {
	var feed []domain.Tweet
	err := tg.listing(ctx, page).Find(&feed).Error
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// ByUsername retrieves the tweets of the user with the given username, newest first.
func (tg *tweetGorm) ByUsername(ctx context.Context, username string, page domain.Page) ([]domain.Tweet, error) {
	var user domain.User
	if err := first(tg.db.WithContext(ctx).Where("username = ?", username), &user); err != nil {
		return nil, err
	}
	var tweets []domain.Tweet
	err := tg.listing(ctx, page).
		Where("user_id = ?", user.ID).
		Find(&tweets).Error
	if err != nil {
		return nil, err
	}
	return tweets, nil
}

// listing is the query shared by all tweet listings. Authors and likes are loaded
// with one query per association, not one per tweet.
func (tg *tweetGorm) listing(ctx context.Context, page domain.Page) *gorm.DB {
	db := tg.db.WithContext(ctx).
		Preload("User").
		Preload("Likes").
		Order("created_at desc, id desc")
	if page.Offset > 0 {
		db = db.Offset(page.Offset)
	}
	if page.Limit > 0 {
		db = db.Limit(page.Limit)
	}
	return db
}

// ByID retrieves a single Tweet by ID, along with its author and likes.
// If the record doesn't exist, it returns errs.ENOTFOUND. Otherwise, it returns nil.
func (tg *tweetGorm) ByID(ctx context.Context, id int) (*domain.Tweet, error) {
	var tweet domain.Tweet
	db := tg.db.WithContext(ctx).
		Preload("User").
		Preload("Likes").
		Where("id = ?", id)
	if err := first(db, &tweet); err != nil {
		return nil, err
	}
	return &tweet, nil
}

// byID retrieves a single Tweet by ID without any of its associations.
func (tg *tweetGorm) byID(ctx context.Context, id int) (*domain.Tweet, error) {
	var tweet domain.Tweet
	if err := first(tg.db.WithContext(ctx).Where("id = ?", id), &tweet); err != nil {
		return nil, err
	}
	return &tweet, nil
}

// CountByUserID returns how many tweets the given user has posted.
func (tg *tweetGorm) CountByUserID(ctx context.Context, userID int) (int, error) {
	var count int64
	err := tg.db.WithContext(ctx).Model(&domain.Tweet{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Create stores the data from the Tweet object in a new database record
// and loads its author.
func (tg *tweetGorm) Create(ctx context.Context, tweet *domain.Tweet) error {
	db := tg.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(tweet).Error; err != nil {
		return err
	}
	return db.Preload("User").First(tweet, tweet.ID).Error
}

// Delete permanently deletes a Tweet record from the database, along with its Likes.
func (tg *tweetGorm) Delete(ctx context.Context, tweet *domain.Tweet) error {
	return tg.db.WithContext(ctx).Select("Likes").Delete(tweet).Error
}
