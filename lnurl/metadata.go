package lnurl

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"

	"github.com/go-errors/errors"
)

// MetadataVersion is the version of the canonical metadata serialization
// produced by Metadata.Serialize.
const MetadataVersion = 1

const (
	MimeTextPlain      = "text/plain"
	MimeTextLongDesc   = "text/long-desc"
	MimeTextIdentifier = "text/identifier"
	MimeTextEmail      = "text/email"
	MimeImagePngBase64 = "image/png;base64"
)

var ErrInvalidMetadata = errors.New("invalid metadata")

// MetadataEntry is a single (mime type, content) pair.
type MetadataEntry struct {
	MimeType string
	Content  string
}

// Metadata is an ordered list of metadata entries. Order is significant.
type Metadata []MetadataEntry

// NewMetadata creates metadata holding a single text/plain description.
func NewMetadata(description string) Metadata {
	return Metadata{{MimeType: MimeTextPlain, Content: description}}
}

// Serialize returns the canonical byte form of the metadata: a compact JSON
// array of two-element string arrays, without HTML escaping and without a
// trailing newline. This exact form is hashed into invoices and sent to
// clients, so it must never change for a given MetadataVersion.
func (m Metadata) Serialize() []byte {
	var buf bytes.Buffer

	buf.WriteByte('[')
	for i, entry := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		writeJSONString(&buf, entry.MimeType)
		buf.WriteByte(',')
		writeJSONString(&buf, entry.Content)
		buf.WriteByte(']')
	}
	buf.WriteByte(']')

	return buf.Bytes()
}

// Hash returns the sha256 digest of the canonical serialization.
func (m Metadata) Hash() [32]byte {
	return HashMetadata(m.Serialize())
}

// Description returns the content of the first text/plain entry.
func (m Metadata) Description() (string, bool) {
	for _, entry := range m {
		if entry.MimeType == MimeTextPlain {
			return entry.Content, true
		}
	}

	return "", false
}

func (m Metadata) Validate() error {
	if _, ok := m.Description(); !ok {
		return errors.Errorf("%w: missing %s entry", ErrInvalidMetadata, MimeTextPlain)
	}

	for _, entry := range m {
		if entry.MimeType == "" {
			return errors.Errorf("%w: empty mime type", ErrInvalidMetadata)
		}
	}

	return nil
}

// HashMetadata hashes raw metadata bytes exactly as received.
func HashMetadata(raw []byte) [32]byte {
	return sha256.Sum256(raw)
}

// ParseMetadata decodes serialized metadata. The result is only meant for
// display; hashes must always be computed over the raw bytes.
func ParseMetadata(raw []byte) (Metadata, error) {
	var entries [][]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	metadata := make(Metadata, 0, len(entries))
	for _, entry := range entries {
		if len(entry) != 2 {
			return nil, errors.Errorf("%w: entry with %d elements", ErrInvalidMetadata, len(entry))
		}

		metadata = append(metadata, MetadataEntry{MimeType: entry[0], Content: entry[1]})
	}

	return metadata, nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	// Encoding a string never fails
	_ = enc.Encode(s)

	// Drop the newline appended by the encoder
	buf.Truncate(buf.Len() - 1)
}
