package crud

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"minitter/domain"
	"minitter/errs"
)

// FollowService manages Follows.
// It implements the domain.FollowService interface.
type FollowService struct {
	followValidator
}

// followValidator runs validations on incoming Follow data.
// On success, it passes the data on to followGorm.
// Otherwise, it returns the error of the validation that has failed.
type followValidator struct {
	followGorm
}

// followGorm runs CRUD operations on the database using incoming Follow data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type followGorm struct {
	db *gorm.DB
}

// NewFollowService returns an instance of FollowService.
func NewFollowService(db *gorm.DB) *FollowService {
	return &FollowService{
		followValidator{
			followGorm{
				db: db,
			},
		},
	}
}

// Ensure the FollowService struct properly implements the domain.FollowService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.FollowService = &FollowService{}

// Follow makes the user with the ID followerID follow the user with the given username.
// Following someone twice is not an error: the existing Follow is returned with
// AlreadyFollowing set.
func (fv *followValidator) Follow(ctx context.Context, followerID int, username string) (*domain.Follow, error) {
	follow, err := fv.newFollow(ctx, followerID, username)
	if err != nil {
		return nil, err
	}
	err = runFollowValFns(follow,
		fv.followerIdValid,
		fv.notFollowingSelf)
	if err != nil {
		return nil, err
	}
	return fv.followGorm.Create(ctx, follow)
}

// Unfollow removes the Follow of followerID to the user with the given username.
// If there was no such Follow, which is not an error either, the returned Follow
// has NotFollowing set.
func (fv *followValidator) Unfollow(ctx context.Context, followerID int, username string) (*domain.Follow, error) {
	follow, err := fv.newFollow(ctx, followerID, username)
	if err != nil {
		return nil, err
	}
	err = runFollowValFns(follow,
		fv.followerIdValid,
		fv.notUnfollowingSelf)
	if err != nil {
		return nil, err
	}
	removed, err := fv.followGorm.Delete(ctx, follow)
	if err != nil {
		return nil, err
	}
	follow.NotFollowing = !removed
	return follow, nil
}

// newFollow resolves the username of the user to be (un)followed into a Follow object.
// It returns errs.ENOTFOUND if there is no user with that username.
func (fv *followValidator) newFollow(ctx context.Context, followerID int, username string) (*domain.Follow, error) {
	var followed domain.User
	db := fv.db.WithContext(ctx).Where("username = ?", username)
	if err := first(db, &followed); err != nil {
		return nil, err
	}
	return &domain.Follow{
		FollowerID: followerID,
		FollowedID: followed.ID,
		Followed:   followed,
	}, nil
}

// runFollowValFns runs any number of functions of type followValFn on the passed in Follow object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runFollowValFns(follow *domain.Follow, fns ...followValFn) error {
	for _, fn := range fns {
		if err := fn(follow); err != nil {
			return err
		}
	}
	return nil
}

// A followValFn is any function that takes in a pointer to a domain.Follow object and returns an error.
type followValFn func(follow *domain.Follow) error

// followerIdValid ensures that the followerID is not empty.
func (fv *followValidator) followerIdValid(follow *domain.Follow) error {
	if follow.FollowerID <= 0 {
		return errs.UserIdValid
	}
	return nil
}

// notFollowingSelf makes sure that the follower and the followed user are not the same user.
func (fv *followValidator) notFollowingSelf(follow *domain.Follow) error {
	if follow.FollowerID == follow.FollowedID {
		return errs.Errorf(errs.EINVALID, "You cannot follow yourself.")
	}
	return nil
}

// notUnfollowingSelf is notFollowingSelf for Unfollow.
func (fv *followValidator) notUnfollowingSelf(follow *domain.Follow) error {
	if follow.FollowerID == follow.FollowedID {
		return errs.Errorf(errs.EINVALID, "You cannot unfollow yourself.")
	}
	return nil
}

// Create stores the Follow, unless the same follower already follows the same user.
// The unique index on (follower_id, followed_id) decides, so that two concurrent
// requests cannot both create one. In that case the stored Follow is returned.
func (fg *followGorm) Create(ctx context.Context, follow *domain.Follow) (*domain.Follow, error) {
	result := fg.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(follow)
	if result.Error != nil && !isUniqueViolation(result.Error) {
		return nil, result.Error
	}
	if result.Error == nil && result.RowsAffected > 0 {
		return follow, nil
	}
	var existing domain.Follow
	err := fg.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", follow.FollowerID, follow.FollowedID).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	existing.Followed = follow.Followed
	existing.AlreadyFollowing = true
	return &existing, nil
}

// Delete permanently deletes the Follow matching the follower and the followed user.
// It reports whether there was one to delete.
func (fg *followGorm) Delete(ctx context.Context, follow *domain.Follow) (bool, error) {
	result := fg.db.WithContext(ctx).
		Where("follower_id = ? AND followed_id = ?", follow.FollowerID, follow.FollowedID).
		Delete(&domain.Follow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Following returns the users that the user with the given username follows,
// the most recently followed first.
func (fg *followGorm) Following(ctx context.Context, username string) ([]domain.User, error) {
	user, err := fg.byUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	var follows []domain.Follow
	err = fg.db.WithContext(ctx).
		Where("follower_id = ?", user.ID).
		Preload("Followed").
		Order("created_at desc, id desc").
		Find(&follows).Error
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(follows))
	for _, f := range follows {
		users = append(users, f.Followed)
	}
	return users, nil
}

// Followers returns the users that follow the user with the given username,
// the most recent follower first.
func (fg *followGorm) Followers(ctx context.Context, username string) ([]domain.User, error) {
	user, err := fg.byUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	var follows []domain.Follow
	err = fg.db.WithContext(ctx).
		Where("followed_id = ?", user.ID).
		Preload("Follower").
		Order("created_at desc, id desc").
		Find(&follows).Error
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(follows))
	for _, f := range follows {
		users = append(users, f.Follower)
	}
	return users, nil
}

// CountFollowing returns how many users the given user follows.
func (fg *followGorm) CountFollowing(ctx context.Context, userID int) (int, error) {
	var count int64
	err := fg.db.WithContext(ctx).Model(&domain.Follow{}).Where("follower_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// CountFollowers returns how many users follow the given user.
func (fg *followGorm) CountFollowers(ctx context.Context, userID int) (int, error) {
	var count int64
	err := fg.db.WithContext(ctx).Model(&domain.Follow{}).Where("followed_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// IsFollowing takes two user IDs and returns a boolean expressing whether
// the first user follows the second one.
func (fg *followGorm) IsFollowing(ctx context.Context, followerID, followedID int) (bool, error) {
	var count int64
	err := fg.db.WithContext(ctx).
		Model(&domain.Follow{}).
		Where("follower_id = ? AND followed_id = ?", followerID, followedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (fg *followGorm) byUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	db := fg.db.WithContext(ctx).Where("username = ?", username)
	if err := first(db, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
