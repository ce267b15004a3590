package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"sanitykit/internal/blobstore"
	"sanitykit/internal/store"
)

const (
	allowRemoteEnvKey = "SANITYKIT_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
)

// Store is the persistence the devstore serves from.
type Store interface {
	store.DocumentStore
	store.AssetStore
}

// Options configures a Server.
type Options struct {
	// TokenHash is a bcrypt hash of the accepted API token. Empty disables auth.
	TokenHash string
	// PublicURL is the base for asset urls. Empty derives it from each request.
	PublicURL string
	// MaxAssetBytes caps upload size. Zero uses the default.
	MaxAssetBytes int64
	Logger        *slog.Logger
	Now           func() time.Time
}

// Server emulates the document store HTTP API on top of SQLite.
type Server struct {
	addr      string
	store     Store
	blobs     blobstore.BlobStore
	documents *DocumentService
	assets    *AssetService
	logger    *slog.Logger
	tokenHash string
	publicURL string
	now       func() time.Time

	maxAssetBytes int64

	verifiedMu sync.Mutex
	verified   map[string]struct{}
}

// New creates a new server instance.
func New(addr string, st Store, blobs blobstore.BlobStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "devstore")
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Server{
		addr:      addr,
		store:     st,
		blobs:     blobs,
		documents: NewDocumentService(st, now),
		assets:    NewAssetService(st, blobs, now),
		logger:    logger,
		tokenHash: strings.TrimSpace(opts.TokenHash),
		publicURL: strings.TrimRight(strings.TrimSpace(opts.PublicURL), "/"),
		now:       now,
		verified:  map[string]struct{}{},

		maxAssetBytes: opts.MaxAssetBytes,
	}
}

// Handler returns the full handler chain, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting devstore", "addr", s.addr, "auth", s.tokenHash != "")
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base URL or host:port into a listen address. Hosts
// other than loopback need SANITYKIT_ALLOW_REMOTE=true.
func ListenAddr(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("listen address is required")
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(raw)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return raw, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
