package crud

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	emailaddress "github.com/mcnijman/go-emailaddress"
	"go.uber.org/multierr"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"minitter/domain"
	"minitter/errs"
)

// UserService manages Users. It also contains the part of the authentication system
// that handles database interactions and token creation / hashing. It's basically
// the "backend" of the auth system, with http/auth.go dealing with requests, middleware
// and cookies being the "frontend". It implements the domain.UserService interface.
type UserService struct {
	userValidator
}

// userValidator runs validations on incoming User data.
// On success, it passes the data on to userGorm.
// Otherwise, it returns the error of the validation that has failed.
type userValidator struct {
	hmac          HMAC
	pepper        string
	usernameRegex *regexp.Regexp
	userGorm
}

// userGorm runs CRUD operations on the database using incoming User data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type userGorm struct {
	db *gorm.DB
}

// NewUserService returns an instance of UserService.
func NewUserService(db *gorm.DB, pepper, hmacKey string) *UserService {
	return &UserService{
		userValidator{
			hmac:          newHMAC(hmacKey),
			pepper:        pepper,
			usernameRegex: regexp.MustCompile(`^[\p{L}\p{N}_.@+\-]+$`),
			userGorm: userGorm{
				db: db,
			},
		},
	}
}

// Ensure the UserService struct properly implements the domain.UserService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.UserService = &UserService{}

// invalidCredentials is returned for an unknown username as well as for a wrong
// password, so that a failed login does not reveal which accounts exist.
var invalidCredentials = errs.Errorf(errs.EUNAUTHORIZED, "Please enter a correct username and password.")

// Authenticate checks a submitted username and password for existence and correctness.
func (uv *userValidator) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	// Look for a user database record containing the submitted username.
	found, err := uv.userGorm.ByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errs.ErrorCode(err) == errs.ENOTFOUND {
			return nil, invalidCredentials
		}
		return nil, err
	}

	// Append a predefined pepper to the submitted password, hash it, and compare the result to the
	// password hash stored in the user's database record. If they match, the submitted password is correct.
	err = bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password+uv.pepper))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, invalidCredentials
		}
		return nil, err
	}

	// Return the now authenticated user and a nil error.
	return found, nil
}

// MakeRememberToken is helper to generate remember tokens of a predetermined byte size.
func (uv *userValidator) MakeRememberToken() (string, error) {
	return bytesToString(RememberTokenBytes)
}

// ByRemember runs validations / normalizations on a user's remember token. It then passes
// the HASHED remember token on to userGorm.ByRemember, will look it up in the database.
func (uv *userValidator) ByRemember(ctx context.Context, token string) (*domain.User, error) {
	user := domain.User{
		Remember: token,
	}
	if err := runUserValFns(&user, uv.rememberHmac); err != nil {
		return nil, err
	}
	return uv.userGorm.ByRemember(ctx, user.RememberHash)
}

// Create runs validations needed for creating new User database records.
// Every rule is checked, and all violations are returned together as a single
// errs.EUNPROCESSABLE error. Only valid users get their password hashed and
// a remember token created.
func (uv *userValidator) Create(ctx context.Context, user *domain.User) error {
	err := collectUserValFns(user,
		uv.usernameNormalize,
		uv.emailNormalize,
		uv.requiredFields,
		uv.usernameFormat,
		uv.usernameIsAvail(ctx),
		uv.emailFormat,
		uv.passwordMinLength,
		uv.passwordNotNumeric,
		uv.passwordNotSimilar,
		uv.passwordConfirmed)
	if err != nil {
		return err
	}
	err = runUserValFns(user,
		uv.passwordBcrypt,
		uv.passwordHashRequired,
		uv.rememberSetIfUnset,
		uv.rememberMinBytes,
		uv.rememberHmac,
		uv.rememberHashRequired)
	if err != nil {
		return err
	}
	err = uv.userGorm.Create(ctx, user)
	if isUniqueViolation(err) {
		// Lost the race against a concurrent signup with the same username.
		return errs.Validation(errs.Field("username", "A user with that username already exists."))
	}
	return err
}

// Update runs validations needed for updating a User record in the database.
// Only the remember token can change after signup.
func (uv *userValidator) Update(ctx context.Context, user *domain.User) error {
	err := runUserValFns(user,
		uv.idValid,
		uv.rememberMinBytes,
		uv.rememberHmac,
		uv.rememberHashRequired)
	if err != nil {
		return err
	}
	return uv.userGorm.Update(ctx, user)
}

// Delete runs validations needed for deleting a User record from the database.
func (uv *userValidator) Delete(ctx context.Context, id int) error {
	if err := runUserValFns(&domain.User{ID: id}, uv.idValid); err != nil {
		return err
	}
	return uv.userGorm.Delete(ctx, id)
}

// runUserValFns runs any number of functions of type userValFn on the passed in User object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runUserValFns(user *domain.User, fns ...userValFn) error {
	for _, fn := range fns {
		if err := fn(user); err != nil {
			return err
		}
	}
	return nil
}

// collectUserValFns runs all of the passed in functions on the User object, even
// after one of them has failed, and folds their errors into one validation error.
func collectUserValFns(user *domain.User, fns ...userValFn) error {
	var err error
	for _, fn := range fns {
		err = multierr.Append(err, fn(user))
	}
	return errs.Validation(err)
}

// A userValFn is any function that takes in a pointer to a domain.User object and returns an error.
type userValFn func(user *domain.User) error

// requiredFields makes sure that none of the signup fields is empty,
// and that the username is not longer than 150 characters.
func (uv *userValidator) requiredFields(user *domain.User) error {
	return checkForm(signupForm{
		Username:             user.Username,
		Email:                user.Email,
		Password:             user.Password,
		PasswordConfirmation: user.PasswordConfirmation,
	})
}

// usernameNormalize trims the username's whitespaces. Its case is kept as is.
func (uv *userValidator) usernameNormalize(user *domain.User) error {
	user.Username = strings.TrimSpace(user.Username)
	return nil
}

// usernameFormat makes sure that the username only contains letters, digits and @/./+/-/_.
func (uv *userValidator) usernameFormat(user *domain.User) error {
	if user.Username == "" {
		return nil
	}
	if !uv.usernameRegex.MatchString(user.Username) {
		return errs.Field("username", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	return nil
}

// usernameIsAvail makes sure that a provided username is not yet taken.
func (uv *userValidator) usernameIsAvail(ctx context.Context) userValFn {
	return func(user *domain.User) error {
		if user.Username == "" {
			return nil
		}
		existing, err := uv.userGorm.ByUsername(ctx, user.Username)
		if errs.ErrorCode(err) == errs.ENOTFOUND {
			// Username is not taken.
			return nil
		}
		if err != nil {
			return err
		}
		if user.ID != existing.ID {
			return errs.Field("username", "A user with that username already exists.")
		}
		return nil
	}
}

// emailFormat makes sure that a provided email address is a valid address.
func (uv *userValidator) emailFormat(user *domain.User) error {
	if user.Email == "" {
		return nil
	}
	if _, err := emailaddress.Parse(user.Email); err != nil {
		return errs.Field("email", "Enter a valid email address.")
	}
	return nil
}

// emailNormalize converts the email to all lowercase and trims its whitespaces.
func (uv *userValidator) emailNormalize(user *domain.User) error {
	user.Email = strings.ToLower(user.Email)
	user.Email = strings.TrimSpace(user.Email)
	return nil
}

// passwordMinLength makes sure that the user's password is at least 8 characters long.
func (uv *userValidator) passwordMinLength(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	if utf8.RuneCountInString(user.Password) < passwordMinLength {
		return errs.Field("password", "This password is too short. It must contain at least %d characters.", passwordMinLength)
	}
	return nil
}

// passwordNotNumeric makes sure that the password is not made of digits only.
func (uv *userValidator) passwordNotNumeric(user *domain.User) error {
	if isNumeric(user.Password) {
		return errs.Field("password", "This password is entirely numeric.")
	}
	return nil
}

// passwordNotSimilar makes sure that the password does not resemble the username or the email.
func (uv *userValidator) passwordNotSimilar(user *domain.User) error {
	if tooSimilar(user.Password, user.Username) {
		return errs.Field("password", "The password is too similar to the username.")
	}
	if tooSimilar(user.Password, user.Email) {
		return errs.Field("password", "The password is too similar to the email address.")
	}
	return nil
}

// passwordConfirmed makes sure that the password was typed the same way twice.
func (uv *userValidator) passwordConfirmed(user *domain.User) error {
	if user.Password == "" || user.PasswordConfirmation == "" {
		return nil
	}
	if user.Password != user.PasswordConfirmation {
		return errs.Field("password_confirmation", "The two password fields didn't match.")
	}
	return nil
}

// passwordBcrypt hashes a user's password with a predefined pepper.
// It bcrypts it, if the Password field is not the empty string.
// It then clears the password on the user object in memory for security reasons.
func (uv *userValidator) passwordBcrypt(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	pwBytes := []byte(user.Password + uv.pepper)
	hashedBytes, err := bcrypt.GenerateFromPassword(pwBytes, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashedBytes)
	user.Password = ""
	user.PasswordConfirmation = ""
	return nil
}

// passwordHashRequired makes sure that the user's password hash is not the empty string.
func (uv *userValidator) passwordHashRequired(user *domain.User) error {
	if user.PasswordHash == "" {
		return errs.Errorf(errs.EINVALID, "A password is required.")
	}
	return nil
}

// idValid makes sure that the user's ID is greater than 0.
func (uv *userValidator) idValid(user *domain.User) error {
	if user.ID <= 0 {
		return errs.IdInvalid
	}
	return nil
}

// rememberHashRequired makes sure the user's remember token hash is not the empty string.
func (uv *userValidator) rememberHashRequired(user *domain.User) error {
	if user.RememberHash == "" {
		return errs.RememberHashEmpty
	}
	return nil
}

// rememberHmac creates the user's remember token hash, if a remember token has been provided.
func (uv *userValidator) rememberHmac(user *domain.User) error {
	if user.Remember == "" {
		return nil
	}
	user.RememberHash = uv.hmac.hash(user.Remember)
	return nil
}

// rememberMinBytes makes sure that the user's remember token is not too short.
func (uv *userValidator) rememberMinBytes(user *domain.User) error {
	if user.Remember == "" {
		return nil
	}
	n, err := nBytes(user.Remember)
	if err != nil {
		return err
	}
	if n < RememberTokenBytes {
		return errs.RememberTooShort
	}
	return nil
}

// rememberSetIfUnset creates the user's remember token if none is provided.
func (uv *userValidator) rememberSetIfUnset(user *domain.User) error {
	if user.Remember != "" {
		return nil
	}
	token, err := uv.MakeRememberToken()
	if err != nil {
		return err
	}
	user.Remember = token
	return nil
}

// ByID retrieves a User database record by ID.
func (ug *userGorm) ByID(ctx context.Context, id int) (*domain.User, error) {
	var user domain.User
	db := ug.db.WithContext(ctx).Where("id = ?", id)
	if err := first(db, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ByUsername retrieves a User database record by its exact, case-sensitive username.
func (ug *userGorm) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	db := ug.db.WithContext(ctx).Where("username = ?", username)
	if err := first(db, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ByRemember retrieves a User database record by its hashed remember token.
// The checkUser middleware calls this on every request, trying to identify a user
// by matching a request cookie's remember token to a hashed remember token in the database.
func (ug *userGorm) ByRemember(ctx context.Context, rememberHash string) (*domain.User, error) {
	var user domain.User
	db := ug.db.WithContext(ctx).Where("remember_hash = ?", rememberHash)
	if err := first(db, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create stores the data from the User object in a new database record.
func (ug *userGorm) Create(ctx context.Context, user *domain.User) error {
	return ug.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
}

// Update saves the user's new remember token hash.
func (ug *userGorm) Update(ctx context.Context, user *domain.User) error {
	return ug.db.WithContext(ctx).
		Model(&domain.User{ID: user.ID}).
		Update("remember_hash", user.RememberHash).Error
}

// Delete permanently deletes a User record, along with the user's tweets, likes and follows.
// Likes other users gave to the deleted tweets are removed by the database's cascading foreign keys.
func (ug *userGorm) Delete(ctx context.Context, id int) error {
	result := ug.db.WithContext(ctx).
		Select(clause.Associations).
		Delete(&domain.User{ID: id})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.Errorf(errs.ENOTFOUND, "The user does not exist.")
	}
	return nil
}

// first is a helper for getting the first database record that matches a given query.
// A missing record is reported as errs.ENOTFOUND.
func first(db *gorm.DB, dst interface{}) error {
	err := db.First(dst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Errorf(errs.ENOTFOUND, "The %s does not exist.", recordName(dst))
	}
	return err
}

// recordName returns the word used for dst in not found messages.
func recordName(dst interface{}) string {
	switch dst.(type) {
	case *domain.User:
		return "user"
	case *domain.Tweet:
		return "tweet"
	}
	return "record"
}

// HMAC is a wrapper around the crypto/hmac package making it easier to use.
// It is safe for concurrent use.
type HMAC struct {
	key []byte
}

// newHMAC creates and returns a new HMAC object.
func newHMAC(key string) HMAC {
	return HMAC{
		key: []byte(key),
	}
}

// hash hashes an input string using HMAC with the secret key
// provided when the HMAC object was created in NewUserService.
func (h HMAC) hash(input string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(input))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

const RememberTokenBytes = 32

// bytes generates n random bytes or returns an error. It uses the
// crypto/rand package, so it can be used for things like remember tokens.
func bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// nBytes returns the number of bytes used in a base64 URL encoded string.
func nBytes(base64String string) (int, error) {
	b, err := base64.URLEncoding.DecodeString(base64String)
	if err != nil {
		return -1, err
	}
	return len(b), nil
}

// bytesToString generates a byte slice of size nBytes and then returns a
// string that is the base64 URL encoded version of that byte slice.
func bytesToString(nBytes int) (string, error) {
	b, err := bytes(nBytes)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
