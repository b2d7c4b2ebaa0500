package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config holds the settings for a scrape run.
type Config struct {
	BaseURL  string
	ListPath string
	AjaxPath string

	NonceAction string
	EmbedAction string

	SeriesConcurrency  int
	EpisodeConcurrency int
	AjaxConcurrency    int

	FetchMirrors bool
	// MaxItems keeps only the first MaxItems catalog entries; 0 keeps all.
	MaxItems int
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base url %q must be absolute", c.BaseURL)
	}
	if c.SeriesConcurrency < 1 || c.EpisodeConcurrency < 1 || c.AjaxConcurrency < 1 {
		return errors.New("concurrency limits must be at least 1")
	}
	if c.MaxItems < 0 {
		return errors.New("max items must not be negative")
	}
	if c.FetchMirrors && (c.NonceAction == "" || c.EmbedAction == "") {
		return errors.New("nonce and embed actions are required when fetching mirrors")
	}
	return nil
}

func (c Config) catalogURL() string {
	return joinURL(c.BaseURL, c.ListPath)
}

func (c Config) ajaxURL() string {
	return joinURL(c.BaseURL, c.AjaxPath)
}

// resolve turns a possibly relative link into an absolute URL against the base.
func (c Config) resolve(ref string) string {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
