// ABOUTME: SDP descriptor sources beyond inline text
// ABOUTME: Loads session descriptions from local files and HTTP URLs
package sdp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sdplay/sdplay-go/internal/version"
)

// maxDescriptionSize bounds how much of a response body is read; real
// session descriptions are a few hundred bytes.
const maxDescriptionSize = 1 << 20

var httpClient = &http.Client{Timeout: 10 * time.Second}

// FromFile reads and parses an SDP description from disk.
func FromFile(path string) (StreamDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StreamDescriptor{}, fmt.Errorf("read SDP file: %w", err)
	}
	return Parse(string(raw))
}

// FromURL fetches and parses an SDP description over HTTP. Some AES67
// devices publish their current announcement this way.
func FromURL(ctx context.Context, url string) (StreamDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StreamDescriptor{}, fmt.Errorf("build SDP request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/sdp")

	resp, err := httpClient.Do(req)
	if err != nil {
		return StreamDescriptor{}, fmt.Errorf("fetch SDP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StreamDescriptor{}, fmt.Errorf("fetch SDP: HTTP %d from %s", resp.StatusCode, url)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return StreamDescriptor{}, fmt.Errorf("read SDP response: %w", err)
	}
	return Parse(string(raw))
}
