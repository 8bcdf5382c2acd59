package seismic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	MemoryStoreType   = "MemoryStore"
	LocalStoreType    = "LocalStore"
	HTTPStoreType     = "HTTPStore"
	dirPermissionBits = 0755
)

var ErrNotfound = errors.New("not found")

// Store is a flat key/value blob store holding manifests and fragments
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, val io.Reader) error
	Type() string
}

type MemoryStore struct {
	lk   sync.Mutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string][]byte{},
	}
}

func (s *MemoryStore) Type() string { return MemoryStoreType }

func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, val io.Reader) error {
	d, err := io.ReadAll(val)
	if err != nil {
		return err
	}

	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = d

	return nil
}

// Keys lists every stored key
func (s *MemoryStore) Keys() []string {
	s.lk.Lock()
	defer s.lk.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

type LocalStore struct {
	base string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(base string) (*LocalStore, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, dirPermissionBits); err != nil {
		return nil, err
	}

	return &LocalStore{
		base: base,
	}, nil
}

func (s *LocalStore) Type() string { return LocalStoreType }

func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.base, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
	}
	return f, err
}

func (s *LocalStore) Put(_ context.Context, key string, val io.Reader) error {
	path := filepath.Join(s.base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), dirPermissionBits); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, val); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// HTTPStore reads and writes objects as {endpoint}/{key} on a blob storage
// endpoint, e.g. an azure storage account
type HTTPStore struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore creates a store rooted at endpoint. If token is non-empty it
// is sent as a bearer token with every request. A nil client means
// http.DefaultClient.
func NewHTTPStore(endpoint, token string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
		client:   client,
	}
}

func (s *HTTPStore) Type() string { return HTTPStoreType }

// URL is the address of the object stored at key
func (s *HTTPStore) URL(key string) string {
	return s.endpoint + "/" + strings.TrimPrefix(key, "/")
}

func (s *HTTPStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case res.StatusCode == http.StatusNotFound:
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
	case res.StatusCode != http.StatusOK:
		res.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", s.URL(key), res.Status)
	}
	return res.Body, nil
}

func (s *HTTPStore) Put(ctx context.Context, key string, val io.Reader) error {
	req, err := s.newRequest(ctx, http.MethodPut, key, val)
	if err != nil {
		return err
	}
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("PUT %s: unexpected status %s", s.URL(key), res.Status)
	}
	return nil
}

func (s *HTTPStore) newRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.URL(key), body)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}
