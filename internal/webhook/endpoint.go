package webhook

import (
	"fmt"
	"net/url"
	"strings"

	"sheetrelay/gateway/internal/jobs"
)

// placeholderMarkers are substrings found in the sample endpoints shipped in
// example env files.
var placeholderMarkers = []string{
	"your-n8n",
	"example.com",
	"your-actual",
	"your-n8n-webhook-url",
}

const minEndpointLength = 10

// ValidateEndpoint reports whether raw is a usable webhook URL. Unusable
// endpoints wrap jobs.ErrConfiguration.
func ValidateEndpoint(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("endpoint is not set: %w", jobs.ErrConfiguration)
	}
	if len(trimmed) < minEndpointLength {
		return fmt.Errorf("endpoint %q is too short: %w", trimmed, jobs.ErrConfiguration)
	}
	for _, marker := range placeholderMarkers {
		if strings.Contains(trimmed, marker) {
			return fmt.Errorf("endpoint %q is a placeholder: %w", trimmed, jobs.ErrConfiguration)
		}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("endpoint %q is not a valid URL (%v): %w", trimmed, err, jobs.ErrConfiguration)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q must use http or https: %w", trimmed, jobs.ErrConfiguration)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host: %w", trimmed, jobs.ErrConfiguration)
	}
	return nil
}
