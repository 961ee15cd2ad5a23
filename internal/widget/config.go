package widget

import (
	"regexp"
	"strings"
)

type Position string

const (
	PositionBottomRight Position = "bottom-right"
	PositionBottomLeft  Position = "bottom-left"
)

const (
	DefaultTenantID    = "demo"
	DefaultAccentColor = "#3B82F6"
	DefaultAPIBaseURL  = "http://localhost:8000"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// EmbedConfig is read once from the host page when the widget mounts and is
// never looked up again while handling messages.
type EmbedConfig struct {
	TenantID    string   `json:"tenant"`
	Position    Position `json:"position"`
	AccentColor string   `json:"color"`
	APIBaseURL  string   `json:"api_url"`
}

func DefaultEmbedConfig() EmbedConfig {
	return EmbedConfig{
		TenantID:    DefaultTenantID,
		Position:    PositionBottomRight,
		AccentColor: DefaultAccentColor,
		APIBaseURL:  DefaultAPIBaseURL,
	}
}

// ParseEmbedConfig builds a config from script tag attributes (data-tenant,
// data-position, data-color, data-api-url). The data- prefix is optional.
// Missing or invalid values keep their defaults.
func ParseEmbedConfig(attrs map[string]string) EmbedConfig {
	cfg := DefaultEmbedConfig()

	get := func(name string) string {
		if v, ok := attrs["data-"+name]; ok {
			return strings.TrimSpace(v)
		}
		if v, ok := attrs[name]; ok {
			return strings.TrimSpace(v)
		}
		// JSON bodies spell it api_url
		return strings.TrimSpace(attrs[strings.ReplaceAll(name, "-", "_")])
	}

	if v := get("tenant"); v != "" {
		cfg.TenantID = v
	}
	switch Position(get("position")) {
	case PositionBottomLeft:
		cfg.Position = PositionBottomLeft
	case PositionBottomRight:
		cfg.Position = PositionBottomRight
	}
	if v := get("color"); hexColor.MatchString(v) {
		cfg.AccentColor = v
	}
	if v := get("api-url"); v != "" {
		cfg.APIBaseURL = strings.TrimRight(v, "/")
	}
	return cfg
}

// Attributes is the inverse of ParseEmbedConfig.
func (c EmbedConfig) Attributes() map[string]string {
	return map[string]string{
		"data-tenant":   c.TenantID,
		"data-position": string(c.Position),
		"data-color":    c.AccentColor,
		"data-api-url":  c.APIBaseURL,
	}
}
