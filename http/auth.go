package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"minitter/auth"
	"minitter/domain"
	"minitter/errs"
)

// rememberCookie is the name of the cookie holding a signed in user's remember token.
const rememberCookie = "remember_token"

// registerAuthRoutes is a helper for registering all authentication routes.
func (s *Server) registerAuthRoutes(r *mux.Router) {
	// Create a new account and sign it in.
	r.HandleFunc("/signup", s.handleSignup).Methods("POST")

	// Sign in with username and password.
	r.HandleFunc("/login", s.handleLogin).Methods("POST")

	// Sign out, invalidating the remember token.
	r.HandleFunc("/logout", s.requireAuth(s.handleLogout)).Methods("POST")

	// Issue a CSRF token for cookie-authenticated clients.
	r.HandleFunc("/csrf", s.handleCSRFToken).Methods("GET")
}

// authResponse is returned by signup and login.
type authResponse struct {
	User  authUser `json:"user"`
	Token string   `json:"token"`
}

// authUser is the signed in user. Unlike anywhere else, it includes the email address.
type authUser struct {
	*domain.User
	Email string `json:"email"`
}

// signupRequest is the json body of a signup request.
type signupRequest struct {
	Username             string `json:"username"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// loginRequest is the json body of a login request.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSignup handles the route "POST /signup".
// It creates a new user and signs them in right away.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body. Only the signup fields are taken over into
	// the new User, the rest (id, timestamps) is up to the database.
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Invalid json body."))
		return
	}
	user := domain.User{
		Username:             req.Username,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	}

	// Create a new User database record. Invalid signups create nothing.
	if err := s.us.Create(r.Context(), &user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Signing up implies signing in.
	token, err := s.signIn(w, r.Context(), &user)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusCreated, authResponse{User: authUser{User: &user, Email: user.Email}, Token: token})
}

// handleLogin handles the route "POST /login".
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errs.ReturnError(w, r, errs.Errorf(errs.EINVALID, "Invalid json body."))
		return
	}

	user, err := s.us.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	token, err := s.signIn(w, r.Context(), user)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, authResponse{User: authUser{User: user, Email: user.Email}, Token: token})
}

// handleLogout handles the route "POST /logout".
// It expires the cookie and rotates the remember token, so that a copy
// of the old cookie can't be used anymore.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.isProd,
	})

	user := auth.GetUser(r.Context())
	token, err := s.us.MakeRememberToken()
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	user.Remember = token
	if err := s.us.Update(r.Context(), user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, map[string]string{"message": "Successfully logged out."})
}

// handleCSRFToken handles the route "GET /csrf".
// The token is also returned in the X-CSRF-Token header, which is where
// unsafe requests have to send it back.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := csrf.Token(r)
	w.Header().Set("X-CSRF-Token", token)
	respond(w, r, http.StatusOK, map[string]string{"csrf_token": token})
}

// signIn signs the given user in via the remember token cookie, creating and storing
// a new remember token first if the user has none. It also returns a bearer token
// for clients that don't keep cookies.
func (s *Server) signIn(w http.ResponseWriter, ctx context.Context, user *domain.User) (string, error) {
	if user.Remember == "" {
		token, err := s.us.MakeRememberToken()
		if err != nil {
			return "", err
		}
		user.Remember = token
		if err := s.us.Update(ctx, user); err != nil {
			return "", err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookie,
		Value:    user.Remember,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.isProd,
		SameSite: http.SameSiteLaxMode,
	})

	return s.tokens.Issue(user.ID)
}

// checkUser identifies the user sending the request, by bearer token or by
// remember token cookie, and stores them in the request context.
// Requests that fail to identify a user are passed on anonymously.
func (s *Server) checkUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := s.identify(r)
		if user != nil {
			r = r.WithContext(auth.SetUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) identify(r *http.Request) *domain.User {
	if token, ok := auth.BearerToken(r); ok {
		userID, err := s.tokens.Validate(token)
		if err != nil {
			return nil
		}
		user, err := s.us.ByID(r.Context(), userID)
		if err != nil {
			return nil
		}
		return user
	}
	cookie, err := r.Cookie(rememberCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	user, err := s.us.ByRemember(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return user
}

// requireAuth rejects anonymous requests with errs.EUNAUTHORIZED.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			errs.ReturnError(w, r, errs.Errorf(errs.EUNAUTHORIZED, "Authentication credentials were not provided."))
			return
		}
		next(w, r)
	}
}
