package config

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

const defaultInterestPrompt = "Select all articles that are informative and well-written."

// Load reads and validates the curation configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &config, nil
}

func setDefaults(config *Config) {
	if strings.TrimSpace(config.InterestPrompt) == "" {
		config.InterestPrompt = defaultInterestPrompt
	}
	for i := range config.Categories {
		if config.Categories[i].Slug == "" {
			config.Categories[i].Slug = Slugify(config.Categories[i].Name)
		}
	}
}

func validate(config *Config) error {
	seenSlugs := make(map[string]bool)
	for i, cat := range config.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category at index %d has no name", i)
		}
		if cat.Slug == "" {
			return fmt.Errorf("category %q produced an empty slug", cat.Name)
		}
		if seenSlugs[cat.Slug] {
			return fmt.Errorf("duplicate category slug %q", cat.Slug)
		}
		seenSlugs[cat.Slug] = true
	}

	seenURLs := make(map[string]bool)
	for i, feed := range config.Feeds {
		if feed.URL == "" {
			return fmt.Errorf("feed at index %d has no URL", i)
		}
		if feed.Name == "" {
			return fmt.Errorf("feed at index %d has no name", i)
		}
		if seenURLs[feed.URL] {
			return fmt.Errorf("duplicate feed URL %q", feed.URL)
		}
		seenURLs[feed.URL] = true
	}

	return nil
}

// CategoryBySlug returns the category with the given slug, or nil.
func (c *Config) CategoryBySlug(slug string) *Category {
	for i := range c.Categories {
		if c.Categories[i].Slug == slug {
			return &c.Categories[i]
		}
	}
	return nil
}

var slugTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives a URL-safe slug from a category name. Diacritics are
// stripped, everything outside [a-z0-9] collapses to single hyphens.
func Slugify(name string) string {
	flattened, _, err := transform.String(slugTransformer, name)
	if err != nil {
		flattened = name
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(flattened) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}
