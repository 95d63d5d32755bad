package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minitter/auth"
	"minitter/crud"
	"minitter/domain"
	"minitter/internal/testutils"
)

const testPassword = "testpassword"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithCSRF(t, "")
}

// newTestServerWithCSRF returns a server with CSRF protection enabled if csrfKey is set.
// Request logs are switched off for the duration of the test.
func newTestServerWithCSRF(t *testing.T, csrfKey string) *Server {
	t.Helper()
	level := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	services, err := crud.NewServices(testutils.NewTestDB(t),
		crud.WithUser("test-pepper", "test-hmac-key"),
		crud.WithTweet(),
		crud.WithFollow(),
		crud.WithLike(),
	)
	require.NoError(t, err)
	return NewServer(false, csrfKey, auth.NewTokens("test-secret"), services)
}

// request is a single request against the test server.
type request struct {
	method  string
	path    string
	token   string
	cookie  *http.Cookie
	cookies []*http.Cookie
	header  map[string]string
	body    interface{}
}

func do(t *testing.T, s *Server, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	switch b := req.body.(type) {
	case nil:
	case string:
		body.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(b))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// findCookie returns the cookie with the given name set by the response, or nil.
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func signupBody(username string) map[string]interface{} {
	return map[string]interface{}{
		"username":              username,
		"email":                 username + "@example.com",
		"password":              testPassword,
		"password_confirmation": testPassword,
	}
}

// signup creates a user over http and returns their bearer token and remember cookie.
func signup(t *testing.T, s *Server, username string) (string, *http.Cookie) {
	t.Helper()
	w := do(t, s, request{method: "POST", path: "/signup", body: signupBody(username)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp authResponse
	decode(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, username, resp.User.Username)

	cookie := findCookie(w, rememberCookie)
	require.NotNil(t, cookie)
	return resp.Token, cookie
}

func postTweet(t *testing.T, s *Server, token, content string) domain.Tweet {
	t.Helper()
	w := do(t, s, request{method: "POST", path: "/tweets", token: token, body: map[string]string{"content": content}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tweet domain.Tweet
	decode(t, w, &tweet)
	return tweet
}

func TestScenario_FollowAndLike(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signup(t, s, "alice")
	bob, _ := signup(t, s, "bob")

	// alice follows bob, twice.
	for i, already := range []bool{false, true} {
		w := do(t, s, request{method: "POST", path: "/users/bob/follow", token: alice})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp followResponse
		decode(t, w, &resp)
		assert.True(t, resp.Following, i)
		assert.Equal(t, already, resp.AlreadyFollowing, i)
		assert.Equal(t, 1, resp.FollowerCount, i)
	}

	// bob tweets, alice likes it twice.
	tweet := postTweet(t, s, bob, "hello from bob")
	assert.Equal(t, "bob", tweet.User.Username)
	likePath := fmt.Sprintf("/tweets/%d/like", tweet.ID)

	w := do(t, s, request{method: "POST", path: likePath, token: alice})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var like domain.LikeResult
	decode(t, w, &like)
	assert.Equal(t, domain.LikeResult{TweetID: tweet.ID, IsLiked: true, LikeCount: 1}, like)

	w = do(t, s, request{method: "POST", path: likePath, token: alice})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	like = domain.LikeResult{}
	decode(t, w, &like)
	assert.True(t, like.AlreadyLiked)
	assert.Equal(t, 1, like.LikeCount)

	// bob's profile as seen by alice.
	w = do(t, s, request{method: "GET", path: "/users/bob", token: alice})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var profile profileResponse
	decode(t, w, &profile)
	assert.Equal(t, 1, profile.User.FollowerCount)
	assert.Equal(t, 0, profile.User.FollowedCount)
	assert.Equal(t, 1, profile.User.TweetCount)
	assert.True(t, profile.User.AuthFollows)
	require.Len(t, profile.Tweets, 1)
	assert.Equal(t, 1, profile.Tweets[0].LikeCount)
	assert.True(t, profile.Tweets[0].Liked)
	assert.Equal(t, []int{tweet.ID}, profile.LikedTweetIDs)

	// Lists.
	w = do(t, s, request{method: "GET", path: "/users/bob/followers", token: alice})
	require.Equal(t, http.StatusOK, w.Code)
	var users []domain.User
	decode(t, w, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	w = do(t, s, request{method: "GET", path: "/users/alice/following", token: bob})
	require.Equal(t, http.StatusOK, w.Code)
	users = nil
	decode(t, w, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	// Unlike and unfollow, twice each.
	unlikePath := fmt.Sprintf("/tweets/%d/unlike", tweet.ID)
	for i, notLiked := range []bool{false, true} {
		w = do(t, s, request{method: "POST", path: unlikePath, token: alice})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		like = domain.LikeResult{}
		decode(t, w, &like)
		assert.False(t, like.IsLiked, i)
		assert.Equal(t, notLiked, like.NotLiked, i)
		assert.Equal(t, 0, like.LikeCount, i)
	}
	for i, notFollowing := range []bool{false, true} {
		w = do(t, s, request{method: "POST", path: "/users/bob/unfollow", token: alice})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp followResponse
		decode(t, w, &resp)
		assert.Equal(t, notFollowing, resp.NotFollowing, i)
		assert.Equal(t, 0, resp.FollowerCount, i)
	}
}

func TestSignup_Invalid(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, request{method: "POST", path: "/signup", body: map[string]string{
		"username":              "alice",
		"email":                 "not-an-email",
		"password":              "12345678",
		"password_confirmation": "87654321",
	}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	var resp struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Fields, "email")
	assert.Contains(t, resp.Fields, "password")
	assert.Contains(t, resp.Fields, "password_confirmation")
	assert.Empty(t, w.Result().Cookies())

	// Nothing was created.
	w = do(t, s, request{method: "POST", path: "/login", body: loginRequest{Username: "alice", Password: "12345678"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, request{method: "POST", path: "/signup", body: "{not json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginAndCookieSession(t *testing.T) {
	s := newTestServer(t)
	_, signupCookie := signup(t, s, "alice")

	// The signup cookie is a valid session.
	w := do(t, s, request{method: "GET", path: "/users/alice", cookie: signupCookie})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Wrong password.
	w = do(t, s, request{method: "POST", path: "/login", body: loginRequest{Username: "alice", Password: "wrongpassword"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Login rotates the remember token.
	w = do(t, s, request{method: "POST", path: "/login", body: loginRequest{Username: "alice", Password: testPassword}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp authResponse
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	cookie := findCookie(w, rememberCookie)
	require.NotNil(t, cookie)

	w = do(t, s, request{method: "GET", path: "/users/alice", cookie: signupCookie})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Logout invalidates the current cookie.
	w = do(t, s, request{method: "POST", path: "/logout", cookie: cookie})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, s, request{method: "GET", path: "/users/alice", cookie: cookie})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signup(t, s, "alice")
	bob, _ := signup(t, s, "bob")
	tweet := postTweet(t, s, alice, "alice's tweet")

	tests := []struct {
		name   string
		req    request
		status int
	}{
		{"post tweet anonymously", request{method: "POST", path: "/tweets", body: map[string]string{"content": "hi"}}, http.StatusUnauthorized},
		{"bad bearer token", request{method: "POST", path: "/tweets", token: "nope", body: map[string]string{"content": "hi"}}, http.StatusUnauthorized},
		{"follow anonymously", request{method: "POST", path: "/users/bob/follow"}, http.StatusUnauthorized},
		{"follow self", request{method: "POST", path: "/users/alice/follow", token: alice}, http.StatusBadRequest},
		{"unfollow self", request{method: "POST", path: "/users/alice/unfollow", token: alice}, http.StatusBadRequest},
		{"follow unknown user", request{method: "POST", path: "/users/nobody/follow", token: alice}, http.StatusNotFound},
		{"profile of unknown user", request{method: "GET", path: "/users/nobody", token: alice}, http.StatusNotFound},
		{"like unknown tweet", request{method: "POST", path: "/tweets/9999/like", token: alice}, http.StatusNotFound},
		{"unlike unknown tweet", request{method: "POST", path: "/tweets/9999/unlike", token: alice}, http.StatusNotFound},
		{"get unknown tweet", request{method: "GET", path: "/tweets/9999"}, http.StatusNotFound},
		{"delete someone else's tweet", request{method: "DELETE", path: fmt.Sprintf("/tweets/%d", tweet.ID), token: bob}, http.StatusForbidden},
		{"delete unknown tweet", request{method: "DELETE", path: "/tweets/9999", token: alice}, http.StatusNotFound},
		{"empty tweet", request{method: "POST", path: "/tweets", token: alice, body: map[string]string{"content": "   "}}, http.StatusUnprocessableEntity},
		{"bad page", request{method: "GET", path: "/tweets?limit=abc"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			var body map[string]interface{}
			decode(t, w, &body)
			assert.NotEmpty(t, body["error"])
		})
	}

	// The tweet survived bob's attempt.
	w := do(t, s, request{method: "GET", path: fmt.Sprintf("/tweets/%d", tweet.ID)})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTweet_LengthLimit(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signup(t, s, "alice")

	w := do(t, s, request{method: "POST", path: "/tweets", token: alice, body: map[string]string{"content": strings.Repeat("x", 281)}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp struct {
		Fields map[string][]string `json:"fields"`
	}
	decode(t, w, &resp)
	assert.Equal(t, []string{"Ensure this value has at most 280 characters (it has 281)."}, resp.Fields["content"])

	postTweet(t, s, alice, strings.Repeat("x", 280))
}

func TestTweet_FeedAndDelete(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signup(t, s, "alice")
	bob, _ := signup(t, s, "bob")
	first := postTweet(t, s, alice, "first")
	second := postTweet(t, s, bob, "second")

	w := do(t, s, request{method: "POST", path: fmt.Sprintf("/tweets/%d/like", first.ID), token: bob})
	require.Equal(t, http.StatusOK, w.Code)

	// The feed is public, newest first.
	w = do(t, s, request{method: "GET", path: "/tweets"})
	require.Equal(t, http.StatusOK, w.Code)
	var feed []domain.Tweet
	decode(t, w, &feed)
	require.Len(t, feed, 2)
	assert.Equal(t, second.ID, feed[0].ID)
	assert.Equal(t, first.ID, feed[1].ID)
	assert.Equal(t, 1, feed[1].LikeCount)
	assert.False(t, feed[1].Liked)

	// As bob, the liked flag is set.
	w = do(t, s, request{method: "GET", path: "/tweets?limit=1&offset=1", token: bob})
	require.Equal(t, http.StatusOK, w.Code)
	feed = nil
	decode(t, w, &feed)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].Liked)

	// The author deletes the tweet and its likes.
	w = do(t, s, request{method: "DELETE", path: fmt.Sprintf("/tweets/%d", first.ID), token: alice})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = do(t, s, request{method: "GET", path: fmt.Sprintf("/tweets/%d", first.ID)})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, request{method: "GET", path: "/users/alice/tweets", token: bob})
	require.Equal(t, http.StatusOK, w.Code)
	feed = nil
	decode(t, w, &feed)
	assert.Empty(t, feed)
}

func TestTweet_ServerAssignedFields(t *testing.T) {
	s := newTestServer(t)
	alice, _ := signup(t, s, "alice")
	first := postTweet(t, s, alice, "first")

	// Only the content is taken from the body.
	w := do(t, s, request{method: "POST", path: "/tweets", token: alice, body: map[string]interface{}{
		"id":         9999,
		"user_id":    9999,
		"content":    "second",
		"created_at": "2001-01-01T00:00:00Z",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second domain.Tweet
	decode(t, w, &second)
	assert.NotEqual(t, 9999, second.ID)
	assert.Equal(t, "alice", second.User.Username)
	assert.WithinDuration(t, time.Now(), second.CreatedAt, time.Minute)

	// It is still the newest tweet in the feed.
	w = do(t, s, request{method: "GET", path: "/tweets"})
	require.Equal(t, http.StatusOK, w.Code)
	var feed []domain.Tweet
	decode(t, w, &feed)
	require.Len(t, feed, 2)
	assert.Equal(t, second.ID, feed[0].ID)
	assert.Equal(t, first.ID, feed[1].ID)
	assert.WithinDuration(t, time.Now(), feed[0].CreatedAt, time.Minute)
}

func TestSignup_ServerAssignedFields(t *testing.T) {
	s := newTestServer(t)

	body := signupBody("alice")
	body["id"] = 4242
	body["created_at"] = "2001-01-01T00:00:00Z"
	w := do(t, s, request{method: "POST", path: "/signup", body: body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var alice authResponse
	decode(t, w, &alice)
	assert.NotEqual(t, 4242, alice.User.ID)
	assert.WithinDuration(t, time.Now(), alice.User.CreatedAt, time.Minute)

	// Naming an id that is taken doesn't matter either.
	body = signupBody("bob")
	body["id"] = alice.User.ID
	w = do(t, s, request{method: "POST", path: "/signup", body: body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var bob authResponse
	decode(t, w, &bob)
	assert.NotEqual(t, alice.User.ID, bob.User.ID)
	assert.Equal(t, "bob", bob.User.Username)
}

func TestEmailOnlyInAuthResponses(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, request{method: "POST", path: "/signup", body: signupBody("alice")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp authResponse
	decode(t, w, &resp)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.NotContains(t, w.Body.String(), "password")
	alice := resp.Token

	bob, _ := signup(t, s, "bob")
	postTweet(t, s, alice, "hello")
	w = do(t, s, request{method: "POST", path: "/users/alice/follow", token: bob})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, req := range []request{
		{method: "GET", path: "/tweets"},
		{method: "GET", path: "/users/alice/followers", token: bob},
		{method: "GET", path: "/users/bob/following", token: alice},
		{method: "GET", path: "/users/alice", token: bob},
	} {
		w := do(t, s, req)
		require.Equal(t, http.StatusOK, w.Code, req.path)
		assert.NotContains(t, w.Body.String(), "@example.com", req.path)
		assert.NotContains(t, w.Body.String(), "email", req.path)
	}

	// Embedded authors carry no profile counters.
	w = do(t, s, request{method: "GET", path: "/tweets"})
	assert.NotContains(t, w.Body.String(), "follower_count")
	assert.NotContains(t, w.Body.String(), "auth_follows")
}

func TestCSRFProtection(t *testing.T) {
	s := newTestServerWithCSRF(t, "0123456789abcdef0123456789abcdef")

	// GET /csrf hands out a token along with the cookie it belongs to.
	w := do(t, s, request{method: "GET", path: "/csrf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var csrfResp map[string]string
	decode(t, w, &csrfResp)
	csrfToken := csrfResp["csrf_token"]
	require.NotEmpty(t, csrfToken)
	assert.Equal(t, csrfToken, w.Header().Get("X-CSRF-Token"))
	csrfCookie := findCookie(w, "_gorilla_csrf")
	require.NotNil(t, csrfCookie)
	withToken := map[string]string{"X-CSRF-Token": csrfToken}

	// Unsafe requests without the token are rejected.
	w = do(t, s, request{method: "POST", path: "/signup", cookies: []*http.Cookie{csrfCookie}, body: signupBody("alice")})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	var errResp map[string]interface{}
	decode(t, w, &errResp)
	assert.NotEmpty(t, errResp["error"])

	w = do(t, s, request{method: "POST", path: "/signup", cookies: []*http.Cookie{csrfCookie}, header: withToken, body: signupBody("alice")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp authResponse
	decode(t, w, &resp)
	remember := findCookie(w, rememberCookie)
	require.NotNil(t, remember)

	// A session cookie alone doesn't authorize a mutation.
	tweet := map[string]string{"content": "hi"}
	w = do(t, s, request{method: "POST", path: "/tweets", cookie: remember, body: tweet})
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = do(t, s, request{method: "POST", path: "/tweets", cookie: remember, cookies: []*http.Cookie{csrfCookie}, header: withToken, body: tweet})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Bearer authenticated requests need no token.
	w = do(t, s, request{method: "POST", path: "/tweets", token: resp.Token, body: tweet})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Safe requests are never checked.
	w = do(t, s, request{method: "GET", path: "/tweets"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	logger, level := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(level)
	})

	h := logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/tweets", nil))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/tweets"`)

	// Test servers keep quiet.
	buf.Reset()
	s := newTestServer(t)
	do(t, s, request{method: "GET", path: "/tweets"})
	assert.Empty(t, buf.String())
}
