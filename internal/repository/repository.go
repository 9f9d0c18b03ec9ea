// Package repository holds the backends where templates and their extraction definitions are kept.
// Every backend stores opaque payloads by key and reports a missing key as a nil reader.
package repository

import (
	"path"
	"strings"
)

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".yml", ".yaml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}

// Keys are flat, anything nested under a "directory" belongs to someone else.
func isTemplateKey(key, suffix string) bool {
	return key != "" && !strings.Contains(key, "/") && strings.HasSuffix(key, suffix)
}
