// Package codec turns a snapshot into a single copy-paste safe line and back.
//
// The wire form is compact JSON encoded with standard base64. Decoding
// tolerates surrounding whitespace and line wrapping added by terminals.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
)

const CodeDecode = "DECODE_ERROR"

// DecodeError reports input that is not valid transport encoding. It is
// distinct from structural problems in the decoded document.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("[%s] invalid transport encoding: %v", CodeDecode, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func (e *DecodeError) Code() string { return CodeDecode }

// Marshal serializes the snapshot in canonical key order.
func Marshal(s *snapshot.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode returns the one-line transport form of the snapshot.
func Encode(s *snapshot.Snapshot) (string, error) {
	data, err := Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses the transport encoding and returns the raw document
// bytes. It does not look at the document structure.
func Decode(line string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, line)
	if compact == "" {
		return nil, &DecodeError{Cause: fmt.Errorf("empty input")}
	}
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return data, nil
}

// DecodeSnapshot decodes a line produced by Encode into a snapshot. It is
// the strict inverse of Encode; untrusted input goes through the validate
// package instead.
func DecodeSnapshot(line string) (*snapshot.Snapshot, error) {
	data, err := Decode(line)
	if err != nil {
		return nil, err
	}
	var s snapshot.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}
