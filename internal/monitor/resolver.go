package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cgale/vigil/internal/config"
)

// Resolver turns a watch-page URL into a directly playable stream URL
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) (string, error)
}

const defaultStreamFormat = "bestvideo[ext=mp4][height>=720]+bestaudio/best"

// YTDLPResolver shells out to yt-dlp to extract the stream URL from a live
// feed page.
type YTDLPResolver struct {
	binary string
	format string
}

// NewYTDLPResolver creates a resolver from configuration
func NewYTDLPResolver(cfg config.ResolverSettings) *YTDLPResolver {
	r := &YTDLPResolver{
		binary: cfg.Binary,
		format: cfg.Format,
	}
	if r.binary == "" {
		r.binary = "yt-dlp"
	}
	if r.format == "" {
		r.format = defaultStreamFormat
	}
	return r
}

// Resolve extracts the playable stream URL for sourceURL
func (r *YTDLPResolver) Resolve(ctx context.Context, sourceURL string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, "--quiet", "-g", "-f", r.format, sourceURL)

	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s failed: %s", r.binary, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s failed: %w", r.binary, err)
	}

	// -g prints one URL per selected format; the first is the video stream
	for _, line := range strings.Split(string(out), "\n") {
		if url := strings.TrimSpace(line); url != "" {
			return url, nil
		}
	}

	return "", fmt.Errorf("%s returned no stream URL for %s", r.binary, sourceURL)
}
