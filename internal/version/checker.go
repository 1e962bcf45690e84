// Package version compares the running build against the latest published
// release.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ReleasesURL is the GitHub endpoint for the latest release
const ReleasesURL = "https://api.github.com/repos/studiowebux/reqgate/releases/latest"

const checkTimeout = 5 * time.Second

// Release is the part of the GitHub release payload that is read
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// Update describes the result of a check
type Update struct {
	Current   string `json:"current"`
	Latest    string `json:"latest"`
	URL       string `json:"url,omitempty"`
	Available bool   `json:"available"`
}

// Checker fetches the latest release
type Checker struct {
	URL    string
	Client *http.Client
}

func NewChecker() *Checker {
	return &Checker{
		URL:    ReleasesURL,
		Client: &http.Client{Timeout: checkTimeout},
	}
}

// Check reports whether a release newer than current exists
func (c *Checker) Check(ctx context.Context, current string) (*Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "reqgate/"+current)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	update := &Update{
		Current: strings.TrimPrefix(current, "v"),
		Latest:  strings.TrimPrefix(release.TagName, "v"),
		URL:     release.HTMLURL,
	}
	update.Available = update.Latest != "" && IsNewer(update.Latest, update.Current)
	return update, nil
}

// IsNewer compares dotted numeric versions. Pre-release and build suffixes
// are ignored, so "1.2.0-rc1" equals "1.2.0".
func IsNewer(latest, current string) bool {
	l, c := parseVersion(latest), parseVersion(current)
	for i := 0; i < max(len(l), len(c)); i++ {
		lp, cp := part(l, i), part(c, i)
		if lp != cp {
			return lp > cp
		}
	}
	return false
}

func part(parts []int, i int) int {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

func parseVersion(version string) []int {
	if idx := strings.IndexAny(version, "-+"); idx != -1 {
		version = version[:idx]
	}

	var out []int
	for _, p := range strings.Split(version, ".") {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
