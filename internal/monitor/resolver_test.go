package monitor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cgale/vigil/internal/config"
)

// fakeResolverScript writes an executable that mimics yt-dlp output
func fakeResolverScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a unix shell")
	}
	path := filepath.Join(t.TempDir(), "fake-yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveFirstURL(t *testing.T) {
	binary := fakeResolverScript(t, `echo "https://cdn.example.com/video.m3u8"
echo "https://cdn.example.com/audio.m3u8"
`)

	r := NewYTDLPResolver(config.ResolverSettings{Binary: binary})
	url, err := r.Resolve(context.Background(), "https://example.com/live")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if url != "https://cdn.example.com/video.m3u8" {
		t.Errorf("got url %q, want the first printed line", url)
	}
}

func TestResolveSkipsBlankLines(t *testing.T) {
	binary := fakeResolverScript(t, `echo ""
echo "https://cdn.example.com/stream.m3u8"
`)

	r := NewYTDLPResolver(config.ResolverSettings{Binary: binary})
	url, err := r.Resolve(context.Background(), "https://example.com/live")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if url != "https://cdn.example.com/stream.m3u8" {
		t.Errorf("got url %q", url)
	}
}

func TestResolveEmptyOutput(t *testing.T) {
	binary := fakeResolverScript(t, "exit 0\n")

	r := NewYTDLPResolver(config.ResolverSettings{Binary: binary})
	_, err := r.Resolve(context.Background(), "https://example.com/live")
	if err == nil || !strings.Contains(err.Error(), "no stream URL") {
		t.Errorf("got %v", err)
	}
}

func TestResolveSurfacesStderr(t *testing.T) {
	binary := fakeResolverScript(t, `echo "ERROR: This live event has ended" >&2
exit 1
`)

	r := NewYTDLPResolver(config.ResolverSettings{Binary: binary})
	_, err := r.Resolve(context.Background(), "https://example.com/live")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "This live event has ended") {
		t.Errorf("stderr not surfaced: %v", err)
	}
}

func TestResolverDefaults(t *testing.T) {
	r := NewYTDLPResolver(config.ResolverSettings{})
	if r.binary != "yt-dlp" {
		t.Errorf("got binary %q", r.binary)
	}
	if r.format != defaultStreamFormat {
		t.Errorf("got format %q", r.format)
	}
}
