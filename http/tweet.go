package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"minitter/auth"
	"minitter/domain"
	"minitter/errs"
)

// maxPageLimit caps the limit query parameter of listings.
const maxPageLimit = 100

// registerTweetRoutes is a helper for registering all Tweet routes.
func (s *Server) registerTweetRoutes(r *mux.Router) {
	// Get the feed: all tweets, newest first.
	r.HandleFunc("/tweets", s.handleFeed).Methods("GET")

	// Post a new tweet.
	r.HandleFunc("/tweets", s.requireAuth(s.handleCreateTweet)).Methods("POST")

	// Get a single tweet.
	r.HandleFunc("/tweets/{id:[0-9]+}", s.handleGetTweet).Methods("GET")

	// Delete one of your own tweets.
	r.HandleFunc("/tweets/{id:[0-9]+}", s.requireAuth(s.handleDeleteTweet)).Methods("DELETE")
}

// handleFeed handles the route "GET /tweets?offset=&limit=".
// Each tweet tells whether the requesting user likes it.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	tweets, err := s.ts.All(r.Context(), page)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	setEngagement(tweets, auth.UserID(r.Context()))
	respond(w, r, http.StatusOK, tweets)
}

// tweetRequest is the json body of a new tweet.
type tweetRequest struct {
	Content string `json:"content"`
}

// handleCreateTweet handles the route "POST /tweets".
func (s *Server) handleCreateTweet(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body. The author is always the authed user,
	// the id and the timestamps are set by the database.
	var req tweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Invalid json body."))
		return
	}
	tweet := domain.Tweet{
		UserID:  auth.UserID(r.Context()),
		Content: req.Content,
	}

	if err := s.ts.Create(r.Context(), &tweet); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusCreated, &tweet)
}

// handleGetTweet handles the route "GET /tweets/:id".
func (s *Server) handleGetTweet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	tweet, err := s.ts.ByID(r.Context(), id)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	tweet.SetEngagement(auth.UserID(r.Context()))
	respond(w, r, http.StatusOK, tweet)
}

// handleDeleteTweet handles the route "DELETE /tweets/:id".
// Only the author of a tweet may delete it.
func (s *Server) handleDeleteTweet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	if err := s.ts.Delete(r.Context(), id, auth.UserID(r.Context())); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseID parses the {id} route parameter.
func parseID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		return 0, errs.Errorf(errs.EINVALID, "Invalid Id format.")
	}
	return id, nil
}

// parsePage parses the optional offset and limit query parameters.
func parsePage(r *http.Request) (domain.Page, error) {
	var page domain.Page
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errs.Errorf(errs.EINVALID, "Invalid offset.")
		}
		page.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errs.Errorf(errs.EINVALID, "Invalid limit.")
		}
		page.Limit = n
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	return page, nil
}

// setEngagement sets like count and liked flag of every tweet for the given user.
func setEngagement(tweets []domain.Tweet, userID int) {
	for i := range tweets {
		tweets[i].SetEngagement(userID)
	}
}
