package media

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeStore struct {
	names []string
	data  [][]byte
	err   error
}

func (s *fakeStore) EnsureContainer(context.Context) error {
	return nil
}

func (s *fakeStore) Upload(_ context.Context, name string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, name)
	s.data = append(s.data, data)
	return "https://store.example/media/" + name, nil
}

func TestExternalizeReturnsStoreURL(t *testing.T) {
	store := &fakeStore{}
	ext := NewExternalizer(store, nil)

	url, err := ext.Externalize(context.Background(), []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Externalize error: %v", err)
	}

	if len(store.names) != 1 {
		t.Fatalf("uploads = %d, want 1", len(store.names))
	}
	if !strings.HasSuffix(store.names[0], ".png") {
		t.Fatalf("blob name = %q, want .png suffix", store.names[0])
	}
	if !strings.HasSuffix(url, store.names[0]) {
		t.Fatalf("url = %q does not reference blob %q", url, store.names[0])
	}
	if !bytes.Equal(store.data[0], []byte("png-bytes")) {
		t.Fatal("uploaded bytes differ from input")
	}
}

func TestExternalizeDistinctNamesPerCall(t *testing.T) {
	store := &fakeStore{}
	ext := NewExternalizer(store, nil)

	for range 2 {
		if _, err := ext.Externalize(context.Background(), []byte("same"), "image/jpeg"); err != nil {
			t.Fatalf("Externalize error: %v", err)
		}
	}

	if store.names[0] == store.names[1] {
		t.Fatalf("expected distinct blob names, got %q twice", store.names[0])
	}
}

func TestExternalizePropagatesStorageFault(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	ext := NewExternalizer(&fakeStore{err: wantErr}, nil)

	_, err := ext.Externalize(context.Background(), []byte("x"), "image/png")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestExtensionFromMIME(t *testing.T) {
	cases := []struct {
		mime string
		want string
	}{
		{"image/png", "png"},
		{"video/mp4", "mp4"},
		{"application/pdf", "pdf"},
		{"application/octet-stream", "octet-stream"},
		{"image/jpeg; charset=binary", "jpeg"},
		{"malformed", "bin"},
		{"", "bin"},
		{"image/", "bin"},
	}

	for _, tc := range cases {
		if got := extensionFromMIME(tc.mime); got != tc.want {
			t.Fatalf("extensionFromMIME(%q) = %q, want %q", tc.mime, got, tc.want)
		}
	}
}
