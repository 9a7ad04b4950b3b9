package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fallback is shown when a key is missing in every language
const Fallback = "❗ טקסט לא נמצא / Text not found."

// DefaultLanguage is used when none is configured
const DefaultLanguage = "he"

//go:embed locales/*.yaml
var locales embed.FS

// Catalog holds the message tables of every supported language
type Catalog struct {
	defaultLang string
	tables      map[string]map[string]string
}

// Load reads the embedded locale files. defaultLang must be one of them.
func Load(defaultLang string) (*Catalog, error) {
	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	tables := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		data, err := locales.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		table := make(map[string]string)
		if err := yaml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		tables[strings.TrimSuffix(name, ".yaml")] = table
	}

	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	if _, ok := tables[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q has no locale file", defaultLang)
	}
	return &Catalog{defaultLang: defaultLang, tables: tables}, nil
}

// MustLoad is Load for program start and tests
func MustLoad(defaultLang string) *Catalog {
	c, err := Load(defaultLang)
	if err != nil {
		panic(err)
	}
	return c
}

// T formats the message for key in lang, falling back to the default language and then to
// Fallback. It never fails.
func (c *Catalog) T(lang, key string, args ...any) string {
	text, ok := c.tables[lang][key]
	if !ok {
		text, ok = c.tables[c.defaultLang][key]
	}
	if !ok {
		return Fallback
	}
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}

// Supported reports whether lang has a locale file
func (c *Catalog) Supported(lang string) bool {
	_, ok := c.tables[lang]
	return ok
}

// Resolve returns lang when supported, otherwise the default language
func (c *Catalog) Resolve(lang string) string {
	if c.Supported(lang) {
		return lang
	}
	return c.defaultLang
}

// Default returns the default language code
func (c *Catalog) Default() string {
	return c.defaultLang
}

// Languages lists the supported language codes, default first
func (c *Catalog) Languages() []string {
	langs := make([]string, 0, len(c.tables))
	for lang := range c.tables {
		if lang != c.defaultLang {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return append([]string{c.defaultLang}, langs...)
}
