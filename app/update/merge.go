// Package update implements the crawl-and-reconcile pass: merging
// spreadsheet descriptors, repository metadata, and per-project manifest
// files into the store with mark-sweep semantics.
package update

import (
	"encoding/json"
	"strings"

	"github.com/civicboard/civicboard/app/database"
)

// mergeSpreadsheet folds a freshly read descriptor over a persisted project.
// A non-empty incoming value that differs from the persisted one wins and
// flips changed; an empty incoming value inherits the persisted value so a
// thin descriptor never downgrades stored fields. The inputs are left
// untouched.
func mergeSpreadsheet(existing, incoming *database.Project) (*database.Project, bool) {
	if existing == nil {
		merged := *incoming
		return &merged, false
	}

	merged := *existing
	merged.ID = existing.ID
	changed := false

	mergeField := func(dst *string, incoming string) {
		if incoming == "" {
			return
		}
		if incoming != *dst {
			*dst = incoming
			changed = true
		}
	}

	mergeField(&merged.Name, incoming.Name)
	mergeField(&merged.CodeURL, incoming.CodeURL)
	mergeField(&merged.LinkURL, incoming.LinkURL)
	mergeField(&merged.Description, incoming.Description)
	mergeField(&merged.Type, incoming.Type)
	mergeField(&merged.Categories, incoming.Categories)
	mergeField(&merged.Status, incoming.Status)

	if len(incoming.Tags) > 0 && !equalTags(incoming.Tags, merged.Tags) {
		merged.Tags = incoming.Tags
		changed = true
	}

	return &merged, changed
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// manifest is the parsed civic.json sidecar. statusDefined and tagsDefined
// distinguish "field absent" from "field present but empty"; only defined
// fields may override.
type manifest struct {
	status        string
	statusDefined bool
	tags          []string
	tagsDefined   bool
}

// parseManifest tolerates any malformed body by yielding an empty manifest.
func parseManifest(body []byte) manifest {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return manifest{}
	}

	var m manifest
	if statusRaw, ok := raw["status"]; ok {
		var status string
		if err := json.Unmarshal(statusRaw, &status); err == nil {
			m.status = status
			m.statusDefined = true
		}
	}
	if tagsRaw, ok := raw["tags"]; ok {
		if tags, ok := extractTags(tagsRaw); ok {
			m.tags = tags
			m.tagsDefined = true
		}
	}
	return m
}

// extractTags accepts tags as bare strings or {"tag": ...} objects and
// drops anything else.
func extractTags(raw json.RawMessage) ([]string, bool) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}

	tags := make([]string, 0, len(entries))
	for _, entry := range entries {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			tags = append(tags, s)
			continue
		}
		var obj struct {
			Tag string `json:"tag"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil && obj.Tag != "" {
			tags = append(tags, obj.Tag)
		}
	}
	return tags, true
}

// applyManifest enforces manifest precedence: a defined status or tag list
// overwrites whatever the spreadsheet supplied when it differs.
func applyManifest(project *database.Project, m manifest) bool {
	changed := false
	if m.statusDefined && m.status != project.Status {
		project.Status = m.status
		changed = true
	}
	if m.tagsDefined && !equalTags(m.tags, project.Tags) {
		project.Tags = m.tags
		changed = true
	}
	return changed
}

// splitTags turns a comma-separated spreadsheet cell into a tag list.
func splitTags(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
