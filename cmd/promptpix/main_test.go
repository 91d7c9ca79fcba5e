package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/promptpix/promptpix/internal/relay"
)

func TestRunGenerate_WritesImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/image/generate-image":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"message":"Image Generated","creditBalance":2,"resultImage":"` +
				relay.EncodeDataURI(relay.DefaultImageMIME, []byte("fox")) + `"}`))
		case "/api/user/credits":
			_, _ = w.Write([]byte(`{"success":true,"credits":2,"user":{"name":"Ada"}}`))
		}
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "fox.png")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-server", srv.URL, "-token", "tok", "generate", "-out", out, "a", "red", "fox"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v (stderr %s)", err, stderr.String())
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fox" {
		t.Errorf("file = %q", got)
	}
	if !strings.Contains(stdout.String(), "2 credits left") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"dance"}, &stdout, &stderr); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(stderr.String(), "usage:") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}

func TestRunGenerate_EmptyPrompt(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-server", "http://127.0.0.1:1", "generate"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "prompt") {
		t.Fatalf("err = %v", err)
	}
}
