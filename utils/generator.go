package utils

import (
	"encoding/base32"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	referencePrefix = "HS"
	referenceLength = 10
)

var (
	referenceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
	referencePattern  = regexp.MustCompile(`^HS[A-Z2-7]{10}$`)
)

// ReferenceGenerator derives the bank-transfer reference of a booking. The
// same booking id always yields the same reference, so concurrent or repeated
// session issuance never produces two references for one booking.
type ReferenceGenerator struct {
	key []byte
}

func NewReferenceGenerator(secret string) *ReferenceGenerator {
	key := blake2b.Sum256([]byte(secret))
	return &ReferenceGenerator{key: key[:]}
}

// Derive returns "HS" followed by ten base32 characters of a keyed hash of id.
func (g *ReferenceGenerator) Derive(id uuid.UUID) string {
	h, err := blake2b.New(16, g.key)
	if err != nil {
		// only reachable with a key longer than 64 bytes
		panic(err)
	}
	h.Write(id[:])
	return referencePrefix + referenceEncoding.EncodeToString(h.Sum(nil))[:referenceLength]
}

// ExtractReferences lists every transfer reference candidate inside
// free-form bank content, in order of appearance. Banks upper-case, strip
// punctuation and sometimes split words, so separators are removed before
// scanning. Candidates may overlap.
func ExtractReferences(content string) []string {
	normalized := strings.ToUpper(content)
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "", ".", "").Replace(normalized)

	var refs []string
	seen := map[string]bool{}
	for i := 0; i+len(referencePrefix)+referenceLength <= len(normalized); i++ {
		if !strings.HasPrefix(normalized[i:], referencePrefix) {
			continue
		}
		candidate := referencePattern.FindString(normalized[i : i+len(referencePrefix)+referenceLength])
		if candidate != "" && !seen[candidate] {
			seen[candidate] = true
			refs = append(refs, candidate)
		}
	}
	return refs
}

// ExtractReference returns the first candidate, or "".
func ExtractReference(content string) string {
	if refs := ExtractReferences(content); len(refs) > 0 {
		return refs[0]
	}
	return ""
}
