package storage

import "strings"

// CollectionForModel derives the collection name backing one embedding
// model. Model tags like "nomic-embed-text:latest" are sanitized to fit
// the key schema; one model maps to exactly one collection.
func CollectionForModel(model string) string {
	var b strings.Builder
	b.WriteString("docs_")
	for _, r := range model {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
