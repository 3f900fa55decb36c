package middleware

import (
	"context"
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

type sessionContextKey struct{}

// FromContext returns the session attached by [Sessions].
func FromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// Sessions resolves the request's session before calling next. A missing, unknown, or
// expired id yields a new session whose id is sent back in a cookie.
func Sessions(engine *goSession.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			opts := engine.CookieOptions()
			var incoming string
			if c, err := r.Cookie(opts.Name); err == nil {
				incoming = c.Value
			}

			sess, err := engine.Resolve(r.Context(), incoming)
			if err != nil {
				http.Error(w, "session unavailable", statusFor(err))
				return
			}

			if sess.ID() != incoming {
				http.SetCookie(w, sessionCookie(sess.Cookie(), sess.ID()))
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Destroy deletes the session attached to r and expires its cookie on w. It must run
// before the response body is written. When the delete fails and the session stays
// attached, the cookie is left alone so the client keeps its handle.
func Destroy(engine *goSession.Engine, w http.ResponseWriter, r *http.Request) error {
	sess, ok := FromContext(r.Context())
	if !ok {
		return session.ErrUnattached
	}
	opts := sess.Cookie()
	err := engine.Delete(r.Context(), sess)
	if err != nil && !errors.Is(err, session.ErrInconsistentDelete) {
		return err
	}

	c := sessionCookie(opts, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
	return err
}

func sessionCookie(opts session.CookieOptions, id string) *http.Cookie {
	return &http.Cookie{
		Name:     opts.Name,
		Value:    id,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: http.SameSiteLaxMode,
	}
}

// statusFor maps store failures onto response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrIDGeneration),
		errors.Is(err, session.ErrDurableUnavailable),
		errors.Is(err, session.ErrDurableCreate):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
