package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		switch r.URL.Path {
		case "/fragments/header.html":
			_, _ = w.Write([]byte("<div>H</div>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := NewHTTPSource(srv.URL, srv.Client())
	require.NoError(t, err)

	content, err := s.Fetch(context.Background(), "/fragments/header.html")
	require.NoError(t, err)
	assert.Equal(t, "<div>H</div>", content)

	_, err = s.Fetch(context.Background(), "/fragments/missing.html")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.Status)
	assert.Equal(t, srv.URL+"/fragments/missing.html", netErr.URL)
}

func TestHTTPSourceAbsoluteLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	s, err := NewHTTPSource("http://unused.invalid/", srv.Client())
	require.NoError(t, err)
	content, err := s.Fetch(context.Background(), srv.URL+"/abs")
	require.NoError(t, err)
	assert.Equal(t, "/abs", content)
}

func TestHTTPSourceBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()
	s, err := NewHTTPSource(srv.URL, srv.Client())
	require.NoError(t, err)
	s.MaxBodySize = 4
	content, err := s.Fetch(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, "0123", content)
}

func TestHTTPSourceTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	s, err := NewHTTPSource(url, nil)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), "/x")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Zero(t, netErr.Status)
}

func TestHTTPSourceWithEngine(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/b.html" {
			_, _ = w.Write([]byte("B"))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	s, err := NewHTTPSource(srv.URL, srv.Client())
	require.NoError(t, err)
	e := NewEngine(s, WithPolicy(fastPolicy(2)))
	res, err := e.Fetch(context.Background(), []string{"/a.html", "/b.html"})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Content)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDirSource(t *testing.T) {
	fsys := fstest.MapFS{
		"fragments/header/header.html": {Data: []byte("<div>H</div>")},
	}
	s := DirSource{FS: fsys}

	content, err := s.Fetch(context.Background(), "/fragments/header/header.html")
	require.NoError(t, err)
	assert.Equal(t, "<div>H</div>", content)

	_, err = s.Fetch(context.Background(), "fragments/nope.html")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.Status)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Fetch(ctx, "fragments/header/header.html")
	assert.ErrorIs(t, err, context.Canceled)
}
