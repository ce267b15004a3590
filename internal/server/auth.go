package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"sanitykit/internal/auth"
)

// withAuth requires a bearer token matching the configured hash on every
// API route. Health checks and asset downloads stay public, like the
// store's CDN.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" || isPublicRoute(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.writeErrorReq(w, r, http.StatusUnauthorized, makeAPIError(http.StatusUnauthorized, errTypeUnauthorized, fmt.Errorf("missing bearer token")))
			return
		}
		if !s.tokenValid(token) {
			s.writeErrorReq(w, r, http.StatusUnauthorized, makeAPIError(http.StatusUnauthorized, errTypeUnauthorized, fmt.Errorf("invalid token")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicRoute(r *http.Request) bool {
	if r.URL.Path == "/health" {
		return true
	}
	return (r.Method == http.MethodGet || r.Method == http.MethodHead) && strings.HasPrefix(r.URL.Path, "/assets/")
}

// tokenValid checks token against the bcrypt hash, remembering a digest of
// tokens that already passed so bcrypt runs once per token.
func (s *Server) tokenValid(token string) bool {
	sum := sha256.Sum256([]byte(token))
	digest := hex.EncodeToString(sum[:])

	s.verifiedMu.Lock()
	_, seen := s.verified[digest]
	s.verifiedMu.Unlock()
	if seen {
		return true
	}

	if !auth.VerifyToken(s.tokenHash, token) {
		return false
	}
	s.verifiedMu.Lock()
	if s.verified == nil {
		s.verified = map[string]struct{}{}
	}
	s.verified[digest] = struct{}{}
	s.verifiedMu.Unlock()
	return true
}
