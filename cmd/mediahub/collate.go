package main

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"mediahub/internal/wire"
)

func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase, collate.Loose, collate.Numeric)
}

// sortDevices orders devices by friendly name, then address.
func sortDevices(devices []wire.Device) {
	c := newCollator()
	sort.SliceStable(devices, func(i, j int) bool {
		if r := c.CompareString(devices[i].Name(), devices[j].Name()); r != 0 {
			return r < 0
		}
		return devices[i].Address() < devices[j].Address()
	})
}

// catalogEntry is the display view of an opaque catalog descriptor.
type catalogEntry struct {
	Title string
	Path  string
	Raw   json.RawMessage
}

func catalogEntries(raw []json.RawMessage) []catalogEntry {
	entries := make([]catalogEntry, 0, len(raw))
	for _, item := range raw {
		var fields map[string]any
		_ = json.Unmarshal(item, &fields)
		entry := catalogEntry{
			Title: firstString(fields, "title", "name"),
			Path:  firstString(fields, "path", "file", "filename"),
			Raw:   item,
		}
		if entry.Title == "" && entry.Path != "" {
			entry.Title = strings.TrimSuffix(filepath.Base(entry.Path), filepath.Ext(entry.Path))
		}
		if entry.Title == "" {
			entry.Title = string(item)
		}
		entries = append(entries, entry)
	}

	c := newCollator()
	sort.SliceStable(entries, func(i, j int) bool {
		return c.CompareString(entries[i].Title, entries[j].Title) < 0
	})
	return entries
}

func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
