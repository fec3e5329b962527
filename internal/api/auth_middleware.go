package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	firebase "github.com/isqad/firebase-auth-service/pkg/service"
	"google.golang.org/grpc"
)

type ctxKey string

// UserIDContextKey is used for extract uid from request context
const UserIDContextKey ctxKey = "userID"

// AuthFailFunc is function that is called when authentication failed
type AuthFailFunc func(w http.ResponseWriter, r *http.Request, err error)

// AuthHandler is optional handler for mocking in tests
type AuthHandler func(next http.Handler) http.Handler

var (
	xAuth             = http.CanonicalHeaderKey("X-Auth")
	ErrEmptyAuthToken = errors.New("empty auth token")
)

// Auth verifies admin tokens against the external auth service. Token
// issuance and validation live outside this process entirely.
type Auth struct {
	Addr         string
	AuthFailFunc AuthFailFunc
	StubHandler  AuthHandler
}

func NewAuth(addr string, authFailFunc AuthFailFunc) *Auth {
	return &Auth{
		Addr:         addr,
		AuthFailFunc: authFailFunc,
	}
}

// Middleware returns the token-verification middleware, or StubHandler
// when a test injected one.
func (m *Auth) Middleware() AuthHandler {
	if m.StubHandler != nil {
		return m.StubHandler
	}

	return m.defaultMiddleware()
}

func (m *Auth) defaultMiddleware() AuthHandler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(xAuth)
			if token == "" {
				m.authFailed(w, r, ErrEmptyAuthToken)
				return
			}

			conn, err := grpc.Dial(m.Addr, []grpc.DialOption{
				grpc.WithInsecure(),
				grpc.WithBlock(),
			}...)
			if err != nil {
				m.authFailed(w, r, err)
				return
			}
			defer conn.Close()

			authClient := firebase.NewAuthClient(conn)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			t, err := authClient.Verify(ctx, &firebase.Token{Token: token})
			if err != nil {
				m.authFailed(w, r, err)
				return
			}

			ctx = context.WithValue(r.Context(), UserIDContextKey, t.GetUserId())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *Auth) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	if m.AuthFailFunc != nil {
		m.AuthFailFunc(w, r, err)
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
}
