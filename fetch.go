package include

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrUnexpectedStatus is matched by every *StatusError, so callers can
	// use errors.Is without caring about the exact status.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Fetcher retrieves the raw markup stored at a site-relative path.
//
// Implementations must treat anything other than a successful retrieval as an
// error; the Includer never injects the markup from a failed Fetch.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (string, error)
}

// StatusError is returned by a Fetcher when the fragment was reachable but
// the response status fell outside [200,300).
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %q: %s: %d %s", e.Path, ErrUnexpectedStatus, e.Code, http.StatusText(e.Code))
}

// Is makes errors.Is(err, ErrUnexpectedStatus) true for any *StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

var _ Fetcher = HTTPFetcher{}
var _ Fetcher = FSFetcher{}

// HTTPFetcher fetches fragments over HTTP with a plain GET: no query string,
// no body, no extra headers.
type HTTPFetcher struct {
	// Client is used to make the request. http.DefaultClient is used if
	// it's nil.
	Client *http.Client

	// BaseURL is the origin fragments are fetched from, for example
	// "https://example.com". The path passed to Fetch is appended to it.
	BaseURL string
}

// Fetch issues a single GET for BaseURL+path and returns the response body
// when the status is in [200,300).
func (f HTTPFetcher) Fetch(ctx context.Context, path string) (string, error) {
	ctx, span := tracer().Start(ctx, "include.Fetch")
	defer span.End()

	url := strings.TrimSuffix(f.BaseURL, "/") + path
	span.SetAttributes(attribute.String("url.full", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("error building request for %q: %w", url, err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("error fetching %q: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger(ctx).WarnContext(ctx, "error closing response body", "url", url, "error", err)
		}
	}()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := &StatusError{Path: path, Code: resp.StatusCode}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("error reading response from %q: %w", url, err)
	}
	return string(body), nil
}

// FSFetcher reads fragments straight out of an fs.FS, usually the same one a
// site is served from. Paths are site-relative, so the leading slash is
// dropped before the lookup. A missing file is reported as a 404
// *StatusError, mirroring what a static file server would answer.
type FSFetcher struct {
	FS fs.FS
}

// Fetch returns the contents of path within the FS.
func (f FSFetcher) Fetch(ctx context.Context, path string) (string, error) {
	_, span := tracer().Start(ctx, "include.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("include.fs_path", path))

	name := strings.TrimPrefix(path, "/")
	if !fs.ValidPath(name) {
		err := &StatusError{Path: path, Code: http.StatusBadRequest}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	contents, err := fs.ReadFile(f.FS, name)
	if errors.Is(err, fs.ErrNotExist) {
		err := &StatusError{Path: path, Code: http.StatusNotFound}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("error reading %q: %w", name, err)
	}
	return string(contents), nil
}
