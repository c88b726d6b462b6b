package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestReferenceGeneratorDeriveIsStable(t *testing.T) {
	gen := NewReferenceGenerator("secret")
	id := uuid.MustParse("2b7e4f5a-3c1d-4e8f-9a0b-1c2d3e4f5a6b")

	first := gen.Derive(id)
	second := NewReferenceGenerator("secret").Derive(id)
	if first != second {
		t.Fatalf("reference changed between generators: %s vs %s", first, second)
	}
	if len(first) != 12 || !strings.HasPrefix(first, "HS") {
		t.Fatalf("unexpected reference format %q", first)
	}
	if other := NewReferenceGenerator("other").Derive(id); other == first {
		t.Error("different secrets produced the same reference")
	}
	if gen.Derive(uuid.New()) == first {
		t.Error("different bookings produced the same reference")
	}
}

func TestExtractReference(t *testing.T) {
	ref := NewReferenceGenerator("secret").Derive(uuid.New())

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"exact", ref, ref},
		{"embedded", "MBVCB.123456.CK " + ref + " thanh toan", ref},
		{"lower case and spaced", strings.ToLower(ref[:6]) + " " + strings.ToLower(ref[6:]), ref},
		{"absent", "chuyen tien phong", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractReference(tt.content); got != tt.want {
				t.Errorf("ExtractReference(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestExtractReferencesScansOverlappingCandidates(t *testing.T) {
	ref := NewReferenceGenerator("secret").Derive(uuid.New())
	// "HS" right before the real reference swallows its first characters in a
	// left-to-right match.
	content := "THANH TOAN HS " + ref

	refs := ExtractReferences(content)
	found := false
	for _, r := range refs {
		if r == ref {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s among candidates %v", ref, refs)
	}
}
