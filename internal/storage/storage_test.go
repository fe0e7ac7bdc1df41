package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/config"
)

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		region   string
		secure   bool
		want     string
	}{
		{"aws with region", "s3.amazonaws.com", "eu-west-1", true, "https://eeg.s3.eu-west-1.amazonaws.com/raw/1.json"},
		{"aws without region", "s3.amazonaws.com", "", true, "https://eeg.s3.amazonaws.com/raw/1.json"},
		{"regional aws endpoint", "s3.us-west-2.amazonaws.com", "us-west-2", true, "https://eeg.s3.us-west-2.amazonaws.com/raw/1.json"},
		{"minio http", "minio:9000", "", false, "http://minio:9000/eeg/raw/1.json"},
		{"minio https", "storage.example", "us-east-1", true, "https://storage.example/eeg/raw/1.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ObjectURL(tt.endpoint, "eeg", tt.region, "raw/1.json", tt.secure); got != tt.want {
				t.Errorf("ObjectURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDisabledStore(t *testing.T) {
	s, err := New(config.StorageConfig{Endpoint: "s3.amazonaws.com", Prefix: "raw/"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.Enabled() {
		t.Fatal("store without bucket should be disabled")
	}

	url, err := s.PutSample(context.Background(), "raw/x.json", []byte(`{}`))
	if err != nil || url != "" {
		t.Errorf("PutSample() = %q, %v; want empty URL and no error", url, err)
	}
}

func TestSampleKey(t *testing.T) {
	s := &Store{prefix: "raw/"}
	a, b := s.SampleKey(), s.SampleKey()
	if a == b {
		t.Error("SampleKey() returned the same key twice")
	}
	if !strings.HasPrefix(a, "raw/") || !strings.HasSuffix(a, ".json") {
		t.Errorf("SampleKey() = %q", a)
	}
}

// fakeS3 accepts object PUTs and remembers the last one.
type fakeS3 struct {
	mu     sync.Mutex
	status int
	path   string
	body   string
	ctype  string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, _ := io.ReadAll(r.Body)
	f.path = r.URL.Path
	f.body = string(data)
	f.ctype = r.Header.Get("Content-Type")
	if f.status != 0 && f.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(f.status)
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		return
	}
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newFakeStore(t *testing.T, fake *fakeS3) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(config.StorageConfig{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		Bucket:          "eeg",
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "testsecret",
		Prefix:          "raw/",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestPutSample(t *testing.T) {
	fake := &fakeS3{}
	s := newFakeStore(t, fake)

	url, err := s.PutSample(context.Background(), "raw/abc.json", []byte(`{"eeg":[1,2]}`))
	if err != nil {
		t.Fatalf("PutSample() error: %v", err)
	}
	if !strings.HasSuffix(url, "/eeg/raw/abc.json") || !strings.HasPrefix(url, "http://") {
		t.Errorf("PutSample() url = %q", url)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.path != "/eeg/raw/abc.json" {
		t.Errorf("PUT path = %q, want /eeg/raw/abc.json", fake.path)
	}
	if fake.body != `{"eeg":[1,2]}` {
		t.Errorf("PUT body = %q", fake.body)
	}
	if fake.ctype != "application/json" {
		t.Errorf("Content-Type = %q", fake.ctype)
	}
}

func TestPutSampleFailure(t *testing.T) {
	s := newFakeStore(t, &fakeS3{status: http.StatusForbidden})

	url, err := s.PutSample(context.Background(), "raw/abc.json", []byte(`{}`))
	if err == nil {
		t.Fatal("PutSample() should fail on 403")
	}
	if url != "" {
		t.Errorf("PutSample() url = %q on failure", url)
	}
}
