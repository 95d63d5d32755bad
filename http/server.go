package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"minitter/auth"
	"minitter/crud"
	"minitter/domain"
	"minitter/errs"
)

// ShutdownTimeout is how long Run waits for in-flight requests after a shutdown signal.
const ShutdownTimeout = 15 * time.Second

// Server provides most of the http functionality of this app, namely routing,
// request handling, and middleware. It also performs authentication and
// authorization before handing things over to one of the database services.
type Server struct {
	router  *mux.Router
	handler http.Handler
	isProd  bool
	tokens  *auth.Tokens
	us      domain.UserService
	ts      domain.TweetService
	fs      domain.FollowService
	ls      domain.LikeService
}

// NewServer returns a new instance of the server, registers all necessary
// routes and gives their handlers access to the app services passed in.
// CSRF protection of cookie-authenticated requests is only enabled when
// a csrfKey is given.
func NewServer(isProd bool, csrfKey string, tokens *auth.Tokens, services *crud.Services) *Server {
	// Construct a new Server with a gorilla router and the services passed in.
	s := &Server{
		router: mux.NewRouter(),
		isProd: isProd,
		tokens: tokens,
		us:     services.User,
		ts:     services.Tweet,
		fs:     services.Follow,
		ls:     services.Like,
	}

	// Register routes of the auth system.
	s.registerAuthRoutes(s.router)

	// Register routes of the crud system.
	s.registerTweetRoutes(s.router)
	s.registerLikeRoutes(s.router)
	s.registerUserRoutes(s.router)
	s.registerFollowRoutes(s.router)

	// Set up middleware that needs to run on every matched request.
	if csrfKey != "" {
		csrfMw := csrf.Protect([]byte(csrfKey),
			csrf.Secure(isProd),
			csrf.Path("/"),
			csrf.HttpOnly(true),
			csrf.ErrorHandler(http.HandlerFunc(handleCSRFFailure)))
		s.router.Use(skipCSRFForBearer, csrfMw)
	}
	s.router.Use(setContentTypeJSON, s.checkUser)

	// Request ids, logging and panic recovery also cover unmatched routes.
	s.handler = middleware.RequestID(
		middleware.RealIP(
			logRequests(
				middleware.Recoverer(s.router))))
	return s
}

// ServeHTTP makes the Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// The setContentTypeJSON middleware sets the content type to "application/json".
func setContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// skipCSRFForBearer exempts requests authenticated by a bearer token from CSRF checks.
// Browsers never attach such a header on their own.
func skipCSRFForBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.BearerToken(r); ok {
			r = csrf.UnsafeSkipCheck(r)
		}
		next.ServeHTTP(w, r)
	})
}

func handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	errs.ReturnError(w, r, errs.Errorf(errs.EFORBIDDEN, "CSRF verification failed: %s", csrf.FailureReason(r)))
}

// logRequests logs every request once it has been served.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// respond writes v as the json body of a response with the given status code.
func respond(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs.LogError(r, err)
	}
}

// Run starts to listen and serve on the specified port. It blocks until the
// process receives SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run(port int) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", port).Bool("prod", s.isProd).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
