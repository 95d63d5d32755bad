package http

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"minitter/auth"
	"minitter/domain"
	"minitter/errs"
)

func (s *Server) registerUserRoutes(r *mux.Router) {
	// Get the profile of a specific user, along with their tweets.
	r.HandleFunc("/users/{username}", s.requireAuth(s.handleGetProfile)).Methods("GET")

	// Get the tweets of a specific user.
	r.HandleFunc("/users/{username}/tweets", s.requireAuth(s.handleUserTweets)).Methods("GET")

	// Get the users a specific user follows, and the users following them.
	r.HandleFunc("/users/{username}/following", s.requireAuth(s.handleFollowing)).Methods("GET")
	r.HandleFunc("/users/{username}/followers", s.requireAuth(s.handleFollowers)).Methods("GET")
}

// profileResponse is the json body of a profile.
type profileResponse struct {
	User          profileUser    `json:"user"`
	Tweets        []domain.Tweet `json:"tweets"`
	LikedTweetIDs []int          `json:"liked_tweet_ids"`
}

// profileUser is a user along with their counters and whether the authed user
// follows them. Only profiles carry these, embedded authors don't.
type profileUser struct {
	*domain.User
	FollowerCount int  `json:"follower_count"`
	FollowedCount int  `json:"followed_count"`
	TweetCount    int  `json:"tweet_count"`
	AuthFollows   bool `json:"auth_follows"`
}

// handleGetProfile handles the route "GET /users/:username".
// It returns the user with their counters, whether the authed user follows
// them, and their tweets.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authedID := auth.UserID(ctx)

	// Fetch the user from the database.
	user, err := s.us.ByUsername(ctx, mux.Vars(r)["username"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	profile := profileUser{User: user}

	// Check if the authed user is following that user.
	if authedID != user.ID {
		profile.AuthFollows, err = s.fs.IsFollowing(ctx, authedID, user.ID)
		if err != nil {
			errs.ReturnError(w, r, err)
			return
		}
	}

	// Get the number of tweets, followers and followeds of the user.
	if err := s.setUserAssociationCounts(ctx, &profile); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	tweets, err := s.ts.ByUsername(ctx, user.Username, domain.Page{})
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	setEngagement(tweets, authedID)

	liked, err := s.ls.LikedTweetIDs(ctx, authedID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	likedIDs := make([]int, 0, len(liked))
	for id := range liked {
		likedIDs = append(likedIDs, id)
	}
	sort.Ints(likedIDs)

	respond(w, r, http.StatusOK, profileResponse{
		User:          profile,
		Tweets:        tweets,
		LikedTweetIDs: likedIDs,
	})
}

// handleUserTweets handles the route "GET /users/:username/tweets?offset=&limit=".
func (s *Server) handleUserTweets(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	tweets, err := s.ts.ByUsername(r.Context(), mux.Vars(r)["username"], page)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	setEngagement(tweets, auth.UserID(r.Context()))
	respond(w, r, http.StatusOK, tweets)
}

// handleFollowing handles the route "GET /users/:username/following".
// The most recently followed user comes first.
func (s *Server) handleFollowing(w http.ResponseWriter, r *http.Request) {
	users, err := s.fs.Following(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, users)
}

// handleFollowers handles the route "GET /users/:username/followers".
// The most recent follower comes first.
func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	users, err := s.fs.Followers(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, users)
}

// setUserAssociationCounts sets the tweet, follower and followed counts of the profile.
func (s *Server) setUserAssociationCounts(ctx context.Context, profile *profileUser) error {
	var err error
	if profile.TweetCount, err = s.ts.CountByUserID(ctx, profile.ID); err != nil {
		return err
	}
	if profile.FollowerCount, err = s.fs.CountFollowers(ctx, profile.ID); err != nil {
		return err
	}
	if profile.FollowedCount, err = s.fs.CountFollowing(ctx, profile.ID); err != nil {
		return err
	}
	return nil
}
