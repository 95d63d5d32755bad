package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"minitter/auth"
	"minitter/errs"
)

func (s *Server) registerFollowRoutes(r *mux.Router) {
	r.HandleFunc("/users/{username}/follow", s.requireAuth(s.handleFollow)).Methods("POST")
	r.HandleFunc("/users/{username}/unfollow", s.requireAuth(s.handleUnfollow)).Methods("POST")
}

// followResponse is the json body of follow and unfollow responses.
type followResponse struct {
	Username         string `json:"username"`
	Following        bool   `json:"following"`
	AlreadyFollowing bool   `json:"already_following,omitempty"`
	NotFollowing     bool   `json:"not_following,omitempty"`
	FollowerCount    int    `json:"follower_count"`
}

// handleFollow handles the route "POST /users/:username/follow".
// Following a user twice still succeeds, the response then has already_following set.
func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	follow, err := s.fs.Follow(ctx, auth.UserID(ctx), mux.Vars(r)["username"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	count, err := s.fs.CountFollowers(ctx, follow.FollowedID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, followResponse{
		Username:         follow.Followed.Username,
		Following:        true,
		AlreadyFollowing: follow.AlreadyFollowing,
		FollowerCount:    count,
	})
}

// handleUnfollow handles the route "POST /users/:username/unfollow".
// Unfollowing a user that isn't followed still succeeds, the response then has not_following set.
func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	follow, err := s.fs.Unfollow(ctx, auth.UserID(ctx), mux.Vars(r)["username"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	count, err := s.fs.CountFollowers(ctx, follow.FollowedID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, followResponse{
		Username:      follow.Followed.Username,
		Following:     false,
		NotFollowing:  follow.NotFollowing,
		FollowerCount: count,
	})
}
