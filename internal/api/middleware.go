package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"
	"github.com/safar/storefront-api/internal/ratelimit"
)

const actionAdminAuth = "admin_auth"

// clientIP expects middleware.RealIP to have already rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit records one attempt per request for the client IP. A limiter backend failure lets
// the request through.
func (h *handler) rateLimit(action string, rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			err := h.Limiter.Enforce(r.Context(), clientIP(r), action, rule)
			var tooMany *ratelimit.TooManyAttemptsError
			switch {
			case errors.As(err, &tooMany):
				hlog.FromRequest(r).Warn().Str("action", action).Msg("rate limit exceeded")
				h.writeError(w, r, err)
				return
			case err != nil:
				hlog.FromRequest(r).Error().Err(err).Str("action", action).Msg("rate limiter unavailable")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) tooManyAttempts(w http.ResponseWriter, r *http.Request, action string, rule ratelimit.Rule) {
	hlog.FromRequest(r).Warn().Str("action", action).Msg("rate limit exceeded")
	w.Header().Set("Retry-After", strconv.Itoa(int(rule.Window.Seconds())))
	respondError(w, r, http.StatusTooManyRequests, "Too many attempts. Please try again later.", nil)
}

// adminAuth checks the bearer token. Only wrong tokens count towards the admin_auth limit, and
// a client over the limit is refused before its token is looked at.
func (h *handler) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if h.Limiter != nil {
			exceeded, err := h.Limiter.Exceeded(r.Context(), ip, actionAdminAuth, h.opts.AuthRule)
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("rate limiter unavailable")
			} else if exceeded {
				h.tooManyAttempts(w, r, actionAdminAuth, h.opts.AuthRule)
				return
			}
		}

		token, ok := bearerToken(r)
		if !ok {
			respondError(w, r, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		expected := h.opts.AdminToken
		if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			if h.Limiter != nil {
				if _, err := h.Limiter.CheckLimit(r.Context(), ip, actionAdminAuth, h.opts.AuthRule); err != nil {
					hlog.FromRequest(r).Error().Err(err).Msg("record failed admin login")
				}
			}
			hlog.FromRequest(r).Warn().Msg("invalid admin token")
			respondError(w, r, http.StatusForbidden, "Invalid token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
