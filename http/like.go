package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"minitter/auth"
	"minitter/errs"
)

// registerLikeRoutes is a helper for registering all Like routes.
func (s *Server) registerLikeRoutes(r *mux.Router) {
	// Like a tweet.
	r.HandleFunc("/tweets/{id:[0-9]+}/like", s.requireAuth(s.handleLike)).Methods("POST")

	// Unlike a previously liked tweet.
	r.HandleFunc("/tweets/{id:[0-9]+}/unlike", s.requireAuth(s.handleUnlike)).Methods("POST")
}

// handleLike handles the route "POST /tweets/:id/like".
// Liking a tweet twice still succeeds, the response then has already_liked set.
func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	result, err := s.ls.Like(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, result)
}

// handleUnlike handles the route "POST /tweets/:id/unlike".
// Unliking a tweet that isn't liked still succeeds, the response then has not_liked set.
func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	result, err := s.ls.Unlike(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, result)
}
