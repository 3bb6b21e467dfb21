package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accounthub/internal/config"
)

func TestHTTPUploader_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart failed: %v", err)
		}
		if got := r.FormValue("file"); got != "data:image/png;base64,AAAA" {
			t.Errorf("unexpected file field: %q", got)
		}
		if got := r.FormValue("folder"); got != "avatars" {
			t.Errorf("unexpected folder field: %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"public_id":"avatars/abc","secure_url":"https://cdn.example.com/avatars/abc.png"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(&config.AssetsConfig{
		UploadURL: srv.URL,
		APIKey:    "test-key",
		Folder:    "avatars",
		Timeout:   5 * time.Second,
	})

	asset, err := u.Upload(context.Background(), "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if asset.PublicID != "avatars/abc" {
		t.Errorf("unexpected public id: %q", asset.PublicID)
	}
	if asset.URL != "https://cdn.example.com/avatars/abc.png" {
		t.Errorf("unexpected url: %q", asset.URL)
	}
}

func TestHTTPUploader_RejectsEmptyPayload(t *testing.T) {
	u := NewHTTPUploader(&config.AssetsConfig{UploadURL: "http://localhost:1"})
	if _, err := u.Upload(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestHTTPUploader_HostError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	u := NewHTTPUploader(&config.AssetsConfig{UploadURL: srv.URL})
	if _, err := u.Upload(context.Background(), "payload"); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestHTTPUploader_IncompleteReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"public_id":"avatars/abc"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(&config.AssetsConfig{UploadURL: srv.URL})
	if _, err := u.Upload(context.Background(), "payload"); err == nil {
		t.Fatal("expected error when secure_url is missing")
	}
}
