// Package fingerprint computes deterministic content fingerprints used
// by the reconciler to detect change. Two items whose normalized
// significant fields match always produce the same fingerprint,
// regardless of field order or incidental whitespace.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Compute hashes the given significant fields. Fields are normalized
// individually and combined in sorted key order, so callers may supply
// them in any order.
func Compute(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no fields to fingerprint")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "" {
			return "", fmt.Errorf("empty field name")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(Normalize(fields[k]))
		sb.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), nil
}

// ComputeContent fingerprints a title/body pair, the common case for
// feed and document sources.
func ComputeContent(title, body string) (string, error) {
	return Compute(map[string]string{
		"title": title,
		"body":  body,
	})
}

// ComputeMarkdownContent fingerprints a title/body pair whose body is
// markdown. The body goes through the markdown renderer first, so two
// revisions differing only in markup punctuation hash identically.
func ComputeMarkdownContent(title, body string) (string, error) {
	return Compute(map[string]string{
		"title": title,
		"body":  NormalizeMarkdown(body),
	})
}
