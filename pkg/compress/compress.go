// Package compress implements the at-rest compression gate (spec.md §6):
// a generic deflate-class algorithm applied only when a payload exceeds a
// size threshold and actually shrinks it by a minimum ratio, with a
// boolean flag recorded alongside the blob so the caller knows whether to
// reverse it on read.
//
// Uses github.com/klauspost/compress/flate, a teacher go.mod dependency
// with no non-test consumer in the corpus — chosen over the stdlib
// compress/flate it is a drop-in replacement for, since the corpus already
// reaches for the faster implementation wherever it needs this codec.
package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

const (
	// Threshold is the minimum payload size considered for compression
	// (spec.md §6 default 1 KB).
	Threshold = 1024
	// MinSavings is the minimum fractional size reduction required for the
	// compressed form to be kept (spec.md §6 default 20%).
	MinSavings = 0.20
)

// Encode compresses data when it is both above Threshold and shrinks by at
// least MinSavings; otherwise it returns data unchanged. The returned bool
// reports whether compression was applied.
func Encode(data []byte) ([]byte, bool, error) {
	if len(data) < Threshold {
		return data, false, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, false, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, false, err
	}
	if err := w.Close(); err != nil {
		return nil, false, err
	}

	savings := 1 - float64(buf.Len())/float64(len(data))
	if savings < MinSavings {
		return data, false, nil
	}
	return buf.Bytes(), true, nil
}

// Decode reverses Encode. If compressed is false, data is returned as-is.
func Decode(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}

	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
