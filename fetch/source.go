package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Source retrieves the raw content stored at location.
type Source interface {
	Fetch(ctx context.Context, location string) (string, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, location string) (string, error)

func (f SourceFunc) Fetch(ctx context.Context, location string) (string, error) {
	return f(ctx, location)
}

// DefaultMaxBodySize caps the body read by HTTPSource.
const DefaultMaxBodySize = 8 << 20

// HTTPSource fetches fragments over HTTP. Relative locations are resolved
// against BaseURL.
type HTTPSource struct {
	Client      *http.Client
	BaseURL     *url.URL
	MaxBodySize int64
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource returns an HTTPSource for baseURL. A nil client uses a client
// without its own timeout; attempts are bounded by the Engine.
func NewHTTPSource(baseURL string, client *http.Client) (*HTTPSource, error) {
	if client == nil {
		client = &http.Client{}
	}
	s := &HTTPSource{Client: client, MaxBodySize: DefaultMaxBodySize}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("fetch: invalid base url %q: %w", baseURL, err)
		}
		s.BaseURL = u
	}
	return s, nil
}

func (s *HTTPSource) resolve(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if s.BaseURL != nil && !u.IsAbs() {
		u = s.BaseURL.ResolveReference(u)
	}
	return u.String(), nil
}

func (s *HTTPSource) Fetch(ctx context.Context, location string) (string, error) {
	target, err := s.resolve(location)
	if err != nil {
		return "", &NetworkError{URL: location, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &NetworkError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &NetworkError{URL: target, Status: resp.StatusCode}
	}
	limit := s.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", &NetworkError{URL: target, Status: resp.StatusCode, Err: err}
	}
	return string(body), nil
}

// DirSource reads fragments from a file system, typically os.DirFS or an
// embed.FS. Missing files are reported as a 404 NetworkError.
type DirSource struct {
	FS fs.FS
}

var _ Source = DirSource{}

func (d DirSource) Fetch(ctx context.Context, location string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := path.Clean(strings.TrimPrefix(location, "/"))
	data, err := fs.ReadFile(d.FS, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NetworkError{URL: location, Status: http.StatusNotFound, Err: err}
		}
		return "", &NetworkError{URL: location, Err: err}
	}
	return string(data), nil
}
