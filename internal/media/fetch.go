// Package media resolves timeline source references to bytes and sizes.
// References starting with http:// or https:// are fetched over the
// network; everything else is treated as a local file path.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Abenaitwe/vidcamp/pkg/timeline"
)

// Fetcher materializes source references. Size may be satisfied without
// downloading the payload when the transport allows it.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
	Size(ctx context.Context, ref string) (int64, error)
}

// Client is the production Fetcher.
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if isURL(ref) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build fetch request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch %s", ref)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: unexpected status %d", ref, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", ref)
		}
		return data, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, errors.Wrap(err, "read payload")
	}
	return data, nil
}

func (c *Client) Size(ctx context.Context, ref string) (int64, error) {
	if isURL(ref) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, ref, nil)
		if err != nil {
			return 0, errors.Wrap(err, "build size request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return 0, errors.Wrapf(err, "measure %s", ref)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
			return resp.ContentLength, nil
		}
		// Some origins refuse HEAD or omit Content-Length.
		data, err := c.Fetch(ctx, ref)
		if err != nil {
			return 0, err
		}
		return int64(len(data)), nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return 0, errors.Wrap(err, "stat payload")
	}
	return info.Size(), nil
}

// TotalSize measures every binary payload the timeline references (clips
// and images; texts carry none) and sums the sizes. A payload that cannot
// be measured fails the whole classification: defaulting to zero would
// route an arbitrarily large job to the in-process backend.
func TotalSize(ctx context.Context, f Fetcher, t *timeline.Timeline) (int64, error) {
	var total int64
	for i, c := range t.Clips {
		n, err := f.Size(ctx, c.Source)
		if err != nil {
			return 0, fmt.Errorf("clip %d: %w", i, err)
		}
		total += n
	}
	for i, img := range t.Images {
		n, err := f.Size(ctx, img.Source)
		if err != nil {
			return 0, fmt.Errorf("image %d: %w", i, err)
		}
		total += n
	}
	return total, nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
