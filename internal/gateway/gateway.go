// Package gateway creates, patches, copies and deletes documents in a remote
// document store on behalf of bulk content jobs.
//
// A Gateway is single-owner: it holds an optional current document id used
// by field operations that are called without one.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sanitykit/internal/api"
	"sanitykit/internal/models"
	"sanitykit/internal/pacing"
)

// ErrNoDocumentID is returned by field operations when neither an explicit
// document id nor a current document id is available.
var ErrNoDocumentID = errors.New("no document id given and no current document set")

// ErrImageTooLarge is returned by AttachImage when a download exceeds the
// configured size cap.
var ErrImageTooLarge = errors.New("image exceeds download size limit")

const (
	defaultDownloadTimeout = 60 * time.Second
	// DefaultMaxImageBytes matches the devstore's upload cap.
	DefaultMaxImageBytes int64 = 100 << 20
)

// Store is the remote document store the gateway drives.
type Store interface {
	Create(ctx context.Context, doc models.Document) (models.Document, error)
	SetFields(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, sel api.Selector) error
	Fetch(ctx context.Context, query string, params map[string]any) ([]models.Document, error)
	UploadAssetFromFile(ctx context.Context, kind models.AssetKind, path string) (models.Asset, error)
}

var _ Store = (*api.Client)(nil)

// ErrorPolicy decides what a patch failure does to its caller.
type ErrorPolicy int

const (
	// Propagate returns the failure.
	Propagate ErrorPolicy = iota
	// LogAndContinue logs the failure with its payload and reports success.
	LogAndContinue
)

func (p ErrorPolicy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case LogAndContinue:
		return "log"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// ParseErrorPolicy accepts "propagate" or "log".
func ParseErrorPolicy(raw string) (ErrorPolicy, error) {
	switch raw {
	case "propagate", "fail":
		return Propagate, nil
	case "log", "continue":
		return LogAndContinue, nil
	default:
		return Propagate, fmt.Errorf("invalid error policy %q (want propagate or log)", raw)
	}
}

// Policies holds the error policy of each patching operation.
type Policies struct {
	Attach      ErrorPolicy
	AttachImage ErrorPolicy
	Set         ErrorPolicy
	CopyField   ErrorPolicy
}

// DefaultPolicies swallows and logs attach and copy failures while set
// failures propagate.
func DefaultPolicies() Policies {
	return Policies{
		Attach:      LogAndContinue,
		AttachImage: LogAndContinue,
		Set:         Propagate,
		CopyField:   LogAndContinue,
	}
}

// Options configures a Gateway. Zero values select defaults.
type Options struct {
	Logger   *slog.Logger
	Pacer    pacing.Pacer
	Policies *Policies
	// HTTPClient downloads remote images for AttachImage.
	HTTPClient *http.Client
	// TempDir holds downloaded images until they are uploaded.
	TempDir string
	// MaxImageBytes caps image downloads. Zero uses DefaultMaxImageBytes.
	MaxImageBytes int64
}

// Gateway is the entry point for document operations.
type Gateway struct {
	store      Store
	logger     *slog.Logger
	pacer      pacing.Pacer
	policies   Policies
	http       *http.Client
	tempDir    string
	maxImage   int64
	documentID string
}

// New returns a gateway over store.
func New(store Store, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = pacing.Fixed{Delay: pacing.DefaultDelay}
	}
	policies := DefaultPolicies()
	if opts.Policies != nil {
		policies = *opts.Policies
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultDownloadTimeout}
	}
	maxImage := opts.MaxImageBytes
	if maxImage <= 0 {
		maxImage = DefaultMaxImageBytes
	}

	return &Gateway{
		store:    store,
		logger:   logger.With("component", "gateway"),
		pacer:    pacer,
		policies: policies,
		http:     httpClient,
		tempDir:  opts.TempDir,
		maxImage: maxImage,
	}
}

// SetDocumentID sets the current document used when a field operation is
// called with an empty id.
func (g *Gateway) SetDocumentID(id string) {
	g.documentID = id
}

// DocumentID returns the current document id.
func (g *Gateway) DocumentID() string {
	return g.documentID
}

func (g *Gateway) resolveID(documentID string) (string, error) {
	if documentID != "" {
		return documentID, nil
	}
	if g.documentID != "" {
		return g.documentID, nil
	}
	return "", ErrNoDocumentID
}

func (g *Gateway) wait(ctx context.Context) error {
	if err := g.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	return nil
}

// patch applies fields to id and resolves a failure according to policy.
func (g *Gateway) patch(ctx context.Context, op string, policy ErrorPolicy, id string, fields map[string]any) error {
	err := g.store.SetFields(ctx, id, fields)
	if err == nil {
		g.logger.Debug("document patched", "op", op, "id", id)
		return nil
	}
	if policy == LogAndContinue {
		g.logger.Error("patch failed", "op", op, "id", id, "payload", fields, "error", err)
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}
