// Package i18n provides internationalization support for error messages.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"
)

// BaseLocale is the fallback locale used when a requested one is unknown.
const BaseLocale = "en-US"

// Code is a machine-readable error code (duplicated from errors package to avoid cycle).
type Code = string

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

var (
	catalogsMu sync.RWMutex
	catalogs   = map[string]*Catalog{
		BaseLocale: NewCatalog(BaseLocale, enUSMessages),
	}
)

// GetCatalog returns the catalog for the given locale.
// Falls back to en-US if the locale is not found.
func GetCatalog(locale string) *Catalog {
	requested := normalizeLocale(locale)
	if requested == "" {
		requested = BaseLocale
	}

	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	if c, ok := catalogs[requested]; ok {
		return c
	}
	return catalogs[BaseLocale]
}

// RegisterCatalog installs or replaces the catalog for a locale.
func RegisterCatalog(c *Catalog) {
	if c == nil || c.locale == "" {
		return
	}
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	catalogs[c.locale] = c
}

// NewCatalog creates a catalog for the given locale.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	copied := make(map[Code]string, len(messages))
	for code, message := range messages {
		copied[code] = message
	}
	return &Catalog{locale: normalizeLocale(locale), messages: copied}
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template with the given metadata.
// Falls back to the error code itself if no template is found.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	tmpl, ok := c.messages[code]
	if !ok {
		return code
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// normalizeLocale canonicalizes values like "en_us" or an Accept-Language
// entry with quality parameters into "en-US" form.
func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if index := strings.IndexAny(locale, ";,"); index >= 0 {
		locale = locale[:index]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	parts := strings.SplitN(locale, "-", 2)
	if len(parts) == 1 {
		return strings.ToLower(parts[0])
	}
	return strings.ToLower(parts[0]) + "-" + strings.ToUpper(parts[1])
}
