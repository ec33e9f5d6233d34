// ABOUTME: Tests for file and URL descriptor sources
// ABOUTME: Uses temp files and httptest servers as SDP origins
package sdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sdplay/sdplay-go/internal/version"
)

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.sdp")
	if err := os.WriteFile(path, []byte(aes67Announcement), 0644); err != nil {
		t.Fatalf("write SDP file: %v", err)
	}

	d, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	if d.Port != 5004 {
		t.Errorf("port = %d, want 5004", d.Port)
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "absent.sdp")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/sdp")
		w.Write([]byte(aes67Announcement))
	}))
	defer srv.Close()

	d, err := FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL failed: %v", err)
	}
	if d.Group.String() != "239.69.11.44" {
		t.Errorf("group = %v, want 239.69.11.44", d.Group)
	}
}

func TestFromURLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := FromURL(context.Background(), srv.URL); err == nil {
		t.Error("expected error for 404 response, got nil")
	}
}

func TestFromURLIdentifiesItself(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Write([]byte(aes67Announcement))
	}))
	defer srv.Close()

	if _, err := FromURL(context.Background(), srv.URL); err != nil {
		t.Fatalf("FromURL failed: %v", err)
	}
	if agent != version.UserAgent() {
		t.Errorf("User-Agent = %q, want %q", agent, version.UserAgent())
	}
}
