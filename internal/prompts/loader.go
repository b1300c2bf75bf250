// Package prompts embeds the model prompt templates and resolves them by
// file and key at runtime. Keeping prompts out of Go source lets them be
// reviewed and tuned without touching pipeline code.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed *.json
var files embed.FS

// registry parses each embedded file once and serves lookups from memory.
type registry struct {
	mu     sync.Mutex
	parsed map[string]map[string]string
}

var reg = &registry{parsed: make(map[string]map[string]string)}

func (r *registry) file(filename string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entries, ok := r.parsed[filename]; ok {
		return entries, nil
	}

	raw, err := files.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	r.parsed[filename] = entries
	return entries, nil
}

// Get resolves a prompt template by bare filename and key, for example
// Get("extraction.json", "extract-requirements").
func Get(filename, key string) (string, error) {
	entries, err := reg.file(filename)
	if err != nil {
		return "", err
	}
	prompt, ok := entries[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// MustGet is Get for prompts required at initialization time; a missing
// prompt there is a packaging bug, so it panics.
func MustGet(filename, key string) string {
	prompt, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return prompt
}

// Format substitutes {{.Key}} placeholders with values from data. Unknown
// placeholders are left in place so a missing value is visible in the output.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, fmt.Sprintf("{{.%s}}", key), value)
	}
	return result
}

// ClearCache drops all parsed files. Tests use it to exercise cold loads.
func ClearCache() {
	reg.mu.Lock()
	reg.parsed = make(map[string]map[string]string)
	reg.mu.Unlock()
}
