package seismic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "cube/missing.json"); !errors.Is(err, ErrNotfound) {
		t.Errorf("%s: expected ErrNotfound, got %v", s.Type(), err)
	}

	if err := s.Put(ctx, "cube/src/4-4-4/0-0-0.f32", strings.NewReader("fragment")); err != nil {
		t.Fatal(err)
	}
	r, err := s.Get(ctx, "cube/src/4-4-4/0-0-0.f32")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	d, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(d) != "fragment" {
		t.Errorf("%s: expected %q, got %q", s.Type(), "fragment", d)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

// blobServer is a minimal blob endpoint that requires a bearer token
func blobServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	var lk sync.Mutex
	blobs := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		lk.Lock()
		defer lk.Unlock()
		switch r.Method {
		case http.MethodGet:
			d, ok := blobs[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(d)
		case http.MethodPut:
			d, _ := io.ReadAll(r.Body)
			blobs[r.URL.Path] = d
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStore(t *testing.T) {
	srv := blobServer(t, "secret")
	s := NewHTTPStore(srv.URL+"/", "secret", srv.Client())
	testStore(t, s)

	if got := s.URL("/cube/manifest.json"); got != srv.URL+"/cube/manifest.json" {
		t.Errorf("unexpected url %s", got)
	}

	anon := NewHTTPStore(srv.URL, "", srv.Client())
	_, err := anon.Get(context.Background(), "cube/src/4-4-4/0-0-0.f32")
	if err == nil || errors.Is(err, ErrNotfound) {
		t.Errorf("expected an authorization error, got %v", err)
	}
}

func TestPath(t *testing.T) {
	p, err := NewPath(`/foo\\bar//baz/`)
	if err != nil {
		t.Fatal(err)
	}
	if p.String() != "foo/bar/baz" {
		t.Errorf("expected foo/bar/baz, got %s", p)
	}

	j := p.Join("manifest.json")
	if j.String() != "foo/bar/baz/manifest.json" || p.String() != "foo/bar/baz" {
		t.Errorf("unexpected join %s of %s", j, p)
	}

	for _, bad := range []string{"", "//", "foo/../bar"} {
		if _, err := NewPath(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
