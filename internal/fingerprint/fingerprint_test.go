package fingerprint

import (
	"strings"
	"testing"
)

func TestComputeStable(t *testing.T) {
	a, err := ComputeContent("Privacy Act Amendment", "The act is amended as follows.")
	if err != nil {
		t.Fatalf("ComputeContent: %v", err)
	}
	b, err := ComputeContent("Privacy Act Amendment", "The act is amended as follows.")
	if err != nil {
		t.Fatalf("ComputeContent: %v", err)
	}
	if a != b {
		t.Errorf("same content produced different fingerprints: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestComputeWhitespaceInsensitive(t *testing.T) {
	a, _ := ComputeContent("Title", "one two three")
	b, _ := ComputeContent("Title", "  one\n\ttwo   three ")
	if a != b {
		t.Error("whitespace differences should not change the fingerprint")
	}
}

func TestComputeTagInsensitive(t *testing.T) {
	a, _ := ComputeContent("Title", "<p>one <b>two</b> three</p>")
	b, _ := ComputeContent("Title", "one two three")
	if a != b {
		t.Error("markup differences should not change the fingerprint")
	}
}

func TestComputeFieldOrderIndependent(t *testing.T) {
	a, err := Compute(map[string]string{"title": "x", "body": "y", "link": "z"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(map[string]string{"link": "z", "body": "y", "title": "x"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Error("field order should not change the fingerprint")
	}
}

func TestComputeDetectsChange(t *testing.T) {
	a, _ := ComputeContent("Title", "original text")
	b, _ := ComputeContent("Title", "revised text")
	if a == b {
		t.Error("different content must produce different fingerprints")
	}
}

func TestComputeEmpty(t *testing.T) {
	if _, err := Compute(nil); err == nil {
		t.Error("expected error for empty field set")
	}
}

func TestNormalizeMarkdown(t *testing.T) {
	a := NormalizeMarkdown("# Heading\n\nSome *emphasised* text.")
	b := NormalizeMarkdown("# Heading\nSome _emphasised_ text.")
	if a != b {
		t.Errorf("markdown emphasis styles should normalize identically: %q != %q", a, b)
	}
	if strings.Contains(a, "*") || strings.Contains(a, "#") {
		t.Errorf("markup leaked into normalized text: %q", a)
	}
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText("<p>First paragraph</p><p>Second   paragraph</p>")
	want := "First paragraph\nSecond paragraph"
	if got != want {
		t.Errorf("HTMLToText = %q, want %q", got, want)
	}
}
