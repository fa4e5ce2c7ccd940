// Package appdata locates the default profile directory of the application.
package appdata

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Dir returns the profile directory of appName under the user cache home,
// which is where fetched payloads are kept. An empty name gives the current
// directory.
func Dir(appName string) string {
	appName = strings.TrimLeft(strings.ToLower(appName), ".")
	if appName == "" {
		return "."
	}
	return filepath.Join(xdg.CacheHome, appName)
}
