package matting

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoveBackgroundSuccess(t *testing.T) {
	var gotKey, gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotContentType = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		gotBody = body
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("matted-png-bytes"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "matting-key", time.Second)
	out, err := client.RemoveBackground(context.Background(), []byte("original-jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}

	if gotKey != "matting-key" {
		t.Errorf("X-Api-Key = %q", gotKey)
	}
	if gotContentType != "image/jpeg" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if !bytes.Equal(gotBody, []byte("original-jpeg")) {
		t.Errorf("service received %q", gotBody)
	}
	if !bytes.Equal(out, []byte("matted-png-bytes")) {
		t.Errorf("RemoveBackground returned %q", out)
	}
}

func TestRemoveBackgroundServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no subject detected", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	_, err := client.RemoveBackground(context.Background(), []byte("img"), "image/jpeg")
	if err == nil {
		t.Fatal("RemoveBackground succeeded against a failing server")
	}

	var sErr *ServiceError
	if !errors.As(err, &sErr) {
		t.Errorf("error type = %T, want *ServiceError", err)
	}
}

func TestRemoveBackgroundEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	_, err := client.RemoveBackground(context.Background(), []byte("img"), "image/jpeg")

	var sErr *ServiceError
	if !errors.As(err, &sErr) {
		t.Errorf("error = %v, want *ServiceError for empty body", err)
	}
}
