package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ComputeContentHash returns the hex SHA-256 of the raw content bytes.
// The hash is recomputed on every artifact write.
func ComputeContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// BuildIDSEID returns the stable natural key for an artifact:
// {project}::{session}::{stage}. It is deterministic and reproducible from
// joins; it never changes once an artifact is created.
func BuildIDSEID(project, session string, stage Stage) string {
	return fmt.Sprintf("%s::%s::%s", project, session, stage)
}

// ParseIDSEID splits an idse_id back into its parts. Returns ok=false when
// the value is not a well-formed natural key.
func ParseIDSEID(id string) (project, session string, stage Stage, ok bool) {
	parts := strings.Split(id, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], Stage(parts[2]), true
}

// NormalizeTokens lowercases text and splits it into alphanumeric tokens.
// The token multiset (order-independent) is the input for both the artifact
// fingerprint and claim-text similarity.
func NormalizeTokens(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ComputeFingerprint returns an order-independent semantic digest of
// content: the SHA-256 of the sorted token multiset. Reordering lines or
// collapsing whitespace does not change the fingerprint, which damps
// copy-propagation false positives in convergence scans.
func ComputeFingerprint(content string) string {
	tokens := NormalizeTokens(content)
	sort.Strings(tokens)
	sum := sha256.Sum256([]byte(strings.Join(tokens, "\x1f")))
	return hex.EncodeToString(sum[:])
}
