package middleware

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

const (
	// DefaultCSRFHeader carries the token on state-changing requests.
	DefaultCSRFHeader = "X-CSRF-Token"
	// DefaultCSRFField is the form field checked when the header is absent.
	DefaultCSRFField = "csrf_token"
)

// RequireCSRF rejects state-changing requests whose token is not a live token of the
// request's session. Each accepted token is consumed. It must be mounted inside
// [Sessions].
func RequireCSRF(engine *goSession.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			sess, ok := FromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			token := r.Header.Get(DefaultCSRFHeader)
			if token == "" {
				token = r.PostFormValue(DefaultCSRFField)
			}
			if token == "" {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			valid, err := engine.ValidateCSRF(r.Context(), sess, token)
			if err != nil {
				http.Error(w, "session unavailable", statusFor(err))
				return
			}
			if !valid {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
