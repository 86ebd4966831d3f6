package canonical_test

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"storyforge/internal/canonical"
)

func TestCanonicalizeSortsNestedKeys(t *testing.T) {
	a := map[string]any{
		"zeta": map[string]any{"b": 1, "a": 2},
		"alpha": []any{
			map[string]any{"y": "later", "x": "first"},
		},
	}
	b := map[string]any{
		"alpha": []any{
			map[string]any{"x": "first", "y": "later"},
		},
		"zeta": map[string]any{"a": 2, "b": 1},
	}

	bytesA, err := canonical.Canonicalize(a)
	if err != nil {
		t.Fatalf("Canonicalize a: %v", err)
	}
	bytesB, err := canonical.Canonicalize(b)
	if err != nil {
		t.Fatalf("Canonicalize b: %v", err)
	}
	if string(bytesA) != string(bytesB) {
		t.Fatalf("canonical forms differ:\n%s\n%s", bytesA, bytesB)
	}
	if want := `{"alpha":[{"x":"first","y":"later"}],"zeta":{"a":2,"b":1}}`; string(bytesA) != want {
		t.Fatalf("unexpected canonical form: %s", bytesA)
	}
}

func TestCanonicalizeNoHTMLEscaping(t *testing.T) {
	doc := map[string]any{"text": "a < b & c > d"}
	data, err := canonical.Canonicalize(doc)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if want := `{"text":"a < b & c > d"}`; string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestHashArtifactIgnoresKeyOrder(t *testing.T) {
	h1, err := canonical.HashArtifact(map[string]any{"id": "p1", "title": "Demo"})
	if err != nil {
		t.Fatalf("HashArtifact: %v", err)
	}
	h2, err := canonical.HashArtifact(map[string]any{"title": "Demo", "id": "p1"})
	if err != nil {
		t.Fatalf("HashArtifact: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ for structurally equal docs: %s vs %s", h1, h2)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(h1) {
		t.Fatalf("not a 64-char lowercase hex digest: %s", h1)
	}
}

func TestHashArtifactDiffersOnContent(t *testing.T) {
	h1, _ := canonical.HashArtifact(map[string]any{"v": "1"})
	h2, _ := canonical.HashArtifact(map[string]any{"v": "2"})
	if h1 == h2 {
		t.Fatal("different documents must hash differently")
	}
}

func TestNumberLexemesSurviveRoundTrip(t *testing.T) {
	v, err := canonical.Decode([]byte(`{"total_duration_sec":60.0}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data, err := canonical.Canonicalize(v)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if want := `{"total_duration_sec":60.0}`; string(data) != want {
		t.Fatalf("number lexeme not preserved: %s", data)
	}
}

func TestHashFileBytesDiffersFromHashArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	// Same logical content, but stored with whitespace the canonical form lacks.
	if err := os.WriteFile(path, []byte("{\"key\": \"value\", \"num\": 42}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fileHash, err := canonical.HashFileBytes(path)
	if err != nil {
		t.Fatalf("HashFileBytes: %v", err)
	}
	artifactHash, err := canonical.HashArtifact(map[string]any{"key": "value", "num": 42})
	if err != nil {
		t.Fatalf("HashArtifact: %v", err)
	}
	if fileHash == artifactHash {
		t.Fatal("file-byte hash must not equal semantic hash for non-canonical bytes")
	}
}

func TestHashFileBytesDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(path, []byte("stable content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h1, err := canonical.HashFileBytes(path)
	if err != nil {
		t.Fatalf("HashFileBytes: %v", err)
	}
	h2, err := canonical.HashFileBytes(path)
	if err != nil {
		t.Fatalf("HashFileBytes: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s vs %s", h1, h2)
	}

	if err := os.WriteFile(path, []byte("different content"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	h3, err := canonical.HashFileBytes(path)
	if err != nil {
		t.Fatalf("HashFileBytes: %v", err)
	}
	if h3 == h1 {
		t.Fatal("hash must change with file content")
	}
}
