package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/compozy/transcripts/engine/knowledge/chunk"
)

const MaxTranscriptFileSizeBytes = 4 * 1024 * 1024

// LoadFile reads a transcript from disk. The file must be text; the id
// defaults to the file name and the title to the header's "title" field.
func LoadFile(path string) (Document, error) {
	data, err := readTranscriptFile(path)
	if err != nil {
		return Document{}, err
	}
	mime := mimetype.Detect(data)
	if !isTextMIME(mime) {
		return Document{}, fmt.Errorf("ingest: %q is %s, not a text transcript", path, mime.String())
	}
	body, err := decodeText(data, mime.String())
	if err != nil {
		return Document{}, fmt.Errorf("ingest: decode transcript %q: %w", path, err)
	}
	base := filepath.Base(path)
	title := HeaderFields(body, chunk.DefaultHeaderDelimiter)["title"]
	if title == "" {
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return Document{ID: base, Title: title, SourceRef: "file://" + filepath.ToSlash(path), Body: body}, nil
}

// decodeText transcodes non UTF-8 input using the BOM, the detected MIME
// charset, or a windows-1252 fallback, then strips the BOM and normalizes
// line endings.
func decodeText(data []byte, contentType string) (string, error) {
	if !utf8.Valid(data) {
		enc, name, _ := charset.DetermineEncoding(data, contentType)
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
		if err != nil {
			return "", fmt.Errorf("transcode from %s: %w", name, err)
		}
		if !utf8.Valid(decoded) {
			return "", fmt.Errorf("transcoded %s result is not valid utf-8", name)
		}
		data = decoded
	}
	text := strings.TrimPrefix(string(data), "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n"), nil
}

func isTextMIME(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}

func readTranscriptFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open transcript %q: %w", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("ingest: stat transcript %q: %w", path, err)
	}
	if info.Size() > int64(MaxTranscriptFileSizeBytes) {
		return nil, fmt.Errorf("ingest: transcript %q exceeds maximum size of %d bytes", path, MaxTranscriptFileSizeBytes)
	}
	data, err := io.ReadAll(io.LimitReader(file, int64(MaxTranscriptFileSizeBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("ingest: read transcript %q: %w", path, err)
	}
	if len(data) > MaxTranscriptFileSizeBytes {
		return nil, fmt.Errorf("ingest: transcript %q changed during read and exceeded %d bytes", path, MaxTranscriptFileSizeBytes)
	}
	return data, nil
}

// HeaderFields parses "key: value" lines of the metadata header, if any.
// Keys are lowercased.
func HeaderFields(text, delimiter string) map[string]string {
	fields := make(map[string]string)
	header, _, ok := chunk.SplitHeader(text, delimiter)
	if !ok {
		return fields
	}
	for _, line := range strings.Split(header, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}
