// Package canonical implements the normal form used for semantic hashing:
// JSON with recursively sorted keys, no incidental whitespace, and no HTML
// escaping. Two structurally equal documents canonicalize to identical bytes
// regardless of key insertion order.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const fileChunkSize = 64 * 1024

// Canonicalize serializes a document to its canonical byte form.
func Canonicalize(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CanonicalizeValue first reduces v to generic JSON values (preserving number
// lexemes via json.Number) and then canonicalizes. Use this for struct-typed
// documents whose field order would otherwise leak into the output.
func CanonicalizeValue(v any) ([]byte, error) {
	generic, err := ToGeneric(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(generic)
}

// ToGeneric round-trips v through JSON into maps, slices, json.Number,
// string, bool, and nil.
func ToGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	return Decode(raw)
}

// Decode parses JSON bytes into generic values with json.Number for numbers,
// so numeric lexemes like "60.0" survive a decode/encode round trip.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeObject parses JSON bytes that must hold an object document.
func DecodeObject(raw []byte) (map[string]any, error) {
	v, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("canonical: document is not a JSON object")
	}
	return doc, nil
}

// HashArtifact returns the lowercase hex SHA-256 of the canonical form of doc.
// This is the system's semantic identity: key order never matters.
func HashArtifact(doc any) (string, error) {
	data, err := Canonicalize(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashFileBytes returns the lowercase hex SHA-256 of a file's exact stored
// bytes, streamed in fixed-size chunks with no JSON interpretation. It is
// deliberately not interchangeable with HashArtifact: one fingerprints stored
// bytes, the other a semantic form.
func HashFileBytes(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, fileChunkSize)
	if _, err := io.CopyBuffer(hasher, file, buf); err != nil {
		return "", fmt.Errorf("hash file %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
