// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// compressThreshold is the payload size at or above which EncodeBinary
// flate-compresses before base64 encoding. Below it, compression
// overhead (headers, checksum) outweighs the saving for the short
// keystroke-sized chunks that make up most terminal traffic.
const compressThreshold = 256

const (
	markerRaw        byte = 'r'
	markerCompressed byte = 'c'
)

// EncodeBinary encodes arbitrary PTY output for embedding in a
// terminal_output frame's Data field. The envelope is JSON text (spec
// §9), so binary output must be encoded either way; payloads of
// compressThreshold bytes or more are flate-compressed first, since terminal and
// inventory bursts frequently contain long runs of whitespace or
// repeated escape sequences that compress well.
func EncodeBinary(data []byte) string {
	if len(data) < compressThreshold {
		return base64.StdEncoding.EncodeToString(append([]byte{markerRaw}, data...))
	}

	var buf bytes.Buffer
	buf.WriteByte(markerCompressed)
	writer, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return base64.StdEncoding.EncodeToString(append([]byte{markerRaw}, data...))
	}
	if _, err := writer.Write(data); err != nil || writer.Close() != nil {
		return base64.StdEncoding.EncodeToString(append([]byte{markerRaw}, data...))
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeBinary reverses EncodeBinary.
func DecodeBinary(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("wire: decoding base64 payload: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("wire: empty binary payload")
	}

	marker, body := raw[0], raw[1:]
	switch marker {
	case markerRaw:
		return body, nil
	case markerCompressed:
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decoded, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("wire: inflating binary payload: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("wire: unrecognised binary payload marker %q", marker)
	}
}
