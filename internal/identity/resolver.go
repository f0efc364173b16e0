// Package identity derives stable company identities from noisy display
// names. The identity is a pure function of its inputs — two runs (or two
// machines) resolving the same name always agree — which is what makes the
// re-key migration tooling possible at all.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Version selects which composite key the resolver hashes. The scheme has
// changed over the system's life; the ledger builder migrates between
// versions, so both stay implemented.
type Version string

const (
	// V1 hashes the normalized name only. Non-generic companies with the
	// same name in different locations deliberately share one identity.
	V1 Version = "v1"
	// V2 hashes name|city|state, splitting same-named companies by location.
	V2 Version = "v2"
)

// IDLength is the hex length of an identity (64 bits of the digest).
const IDLength = 16

// Unknown is the sentinel normalized form for blank names.
const Unknown = "unknown"

// legalSuffixes are stripped from the end of a name during normalization,
// so "Acme Inc" and "Acme LLC" resolve to the same company.
var legalSuffixes = []string{
	"incorporated", "corporation", "company", "limited",
	"inc", "llc", "corp", "ltd", "plc", "gmbh", "co",
}

// defaultGenericNames are placeholder names used by recruiters hiding the
// employer. They carry no identity on their own, so the resolver salts them
// with the location to keep two unrelated "Confidential" postings apart.
var defaultGenericNames = []string{"confidential", "anonymous", "undisclosed"}

// Policy configures the generic-name disambiguation. The trade-off is
// deliberate: generic names split by location, everything else merges
// across locations (under V1) — "ABC Construction" in two states is
// treated as one employer.
type Policy struct {
	GenericNames []string
}

// DefaultPolicy returns the policy the production pipeline runs with.
func DefaultPolicy() Policy {
	return Policy{GenericNames: defaultGenericNames}
}

// Resolver maps (name, city, state) to a 16-hex-character identity.
type Resolver struct {
	Version Version
	Policy  Policy
}

// NewResolver returns a Resolver for the given scheme version with the
// default generic-name policy.
func NewResolver(v Version) *Resolver {
	return &Resolver{Version: v, Policy: DefaultPolicy()}
}

// ParseVersion converts a raw string to a Version.
func ParseVersion(s string) (Version, error) {
	switch Version(strings.ToLower(strings.TrimSpace(s))) {
	case V1:
		return V1, nil
	case V2:
		return V2, nil
	}
	return "", fmt.Errorf("unknown resolver version %q", s)
}

// Resolve returns the identity for a company display name and its parsed
// location. Identical inputs always produce identical output.
func (r *Resolver) Resolve(name, city, state string) string {
	norm := Normalize(name)

	key := norm
	switch {
	case r.Version == V2:
		// Location is part of the key in v2; empty components stay empty
		// strings so the key shape is stable.
		key = norm + "|" + normalizePart(city) + "|" + normalizePart(state)
	case r.isGeneric(norm):
		// Salt placeholders with location so they don't all collide.
		key = norm + "|" + normalizePart(city) + "|" + normalizePart(state)
	}

	return Hash(key)
}

// Hash digests an arbitrary composite key into identity form.
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// Normalize lowercases, trims, collapses whitespace, strips trailing legal
// suffixes and drops characters outside [a-z0-9 -]. A blank result becomes
// the "unknown" sentinel so the hash input is never empty.
func Normalize(name string) string {
	s := stripSuffixes(normalizePart(name))
	if s == "" {
		return Unknown
	}
	return s
}

// normalizePart is Normalize without the suffix stripping and without the
// blank sentinel — location components keep "" as "" so composite keys
// stay shape-stable.
func normalizePart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripSuffixes removes trailing legal-entity words, repeatedly, so
// "acme holdings co ltd" reduces to "acme holdings".
func stripSuffixes(s string) string {
	words := strings.Fields(s)
	for len(words) > 1 {
		last := words[len(words)-1]
		if !isLegalSuffix(last) {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isLegalSuffix(w string) bool {
	for _, suf := range legalSuffixes {
		if w == suf {
			return true
		}
	}
	return false
}

func (r *Resolver) isGeneric(norm string) bool {
	names := r.Policy.GenericNames
	if len(names) == 0 {
		names = defaultGenericNames
	}
	for _, g := range names {
		if norm == g {
			return true
		}
	}
	return false
}
