package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"sanitykit/internal/api"
	"sanitykit/internal/fields"
	"sanitykit/internal/gateway"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden:
			lines = append(lines, "hint: verify SANITYKIT_TOKEN (or the token config key) has write access to the dataset.")
		case apiErr.Status == http.StatusTooManyRequests:
			lines = append(lines, "hint: the store is rate limiting; raise pacing.delay or switch pacing.mode to rate.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify SANITYKIT_API_HOST points to a document store or devstore.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: store returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, fields.ErrNoFieldNames) || errors.Is(err, fields.ErrFieldCountMismatch) {
		lines = append(lines, "hint: give one --fields name per value, or use --set / --data for named fields.")
		return uniqueLines(lines)
	}

	if errors.Is(err, gateway.ErrNoDocumentID) {
		lines = append(lines, "hint: pass --id or the global --document flag.")
		return uniqueLines(lines)
	}

	if errors.Is(err, api.ErrMissingProject) {
		lines = append(lines, "hint: set project_id with: sanitykit config set project_id <id>",
			"hint: or point SANITYKIT_API_HOST at a local devstore.")
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check store health or increase SANITYKIT_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure the store is reachable at SANITYKIT_API_HOST.",
			"hint: start a local store with: sanitykit devstore serve",
			"hint: you can increase SANITYKIT_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
