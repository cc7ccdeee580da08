package config

// Config is the curation configuration loaded from a single YAML file.
// It describes what the reader cares about: the interest prompt sent with
// every enrichment request, the category layout of the newspaper, and the
// feeds to pull from.
type Config struct {
	InterestPrompt string     `yaml:"interest_prompt"`
	Categories     []Category `yaml:"categories"`
	Feeds          []Feed     `yaml:"feeds"`
}

// Category is one section of the generated newspaper.
type Category struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

// Feed is one RSS/Atom source.
type Feed struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	ExtractContent bool   `yaml:"extract_content"`
}
