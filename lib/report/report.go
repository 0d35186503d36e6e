// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/crashtrace/lib/stack"
)

// magic identifies a crashtrace report file.
var magic = []byte("CTRP")

// formatVersion is bumped on incompatible layout changes.
const formatVersion = 1

// digestSize is the BLAKE3 digest length in bytes.
const digestSize = 32

// Report is a captured dump with enough process context to be read
// far from the machine that produced it.
type Report struct {
	// CapturedAt is when the traces were collected.
	CapturedAt time.Time `cbor:"captured_at"`

	// Reason describes why the report exists: the fatal signal name,
	// the watchdog header, or a caller-supplied label for explicit
	// captures.
	Reason string `cbor:"reason"`

	// Hostname and PID identify the producing process.
	Hostname string `cbor:"hostname"`
	PID      int    `cbor:"pid"`

	// Traces are the captured call stacks, in the same order a
	// textual all-thread dump would write them.
	Traces []stack.Trace `cbor:"traces"`
}

// encMode uses Core Deterministic Encoding so the same report always
// produces identical bytes (and therefore an identical digest).
var encMode cbor.EncMode

// decMode ignores unknown fields for forward compatibility.
var decMode cbor.DecMode

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("report: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("report: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("report: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("report: zstd decoder initialization failed: " + err.Error())
	}
}

// Capture builds a Report for the current process from the given
// source. The reason labels the capture.
func Capture(source stack.Source, reason string) Report {
	hostname, _ := os.Hostname()
	return Report{
		CapturedAt: time.Now().UTC(),
		Reason:     reason,
		Hostname:   hostname,
		PID:        os.Getpid(),
		Traces:     source.Threads(),
	}
}

// Encode serializes a report: CBOR body, zstd frame, digest-prefixed
// envelope.
func Encode(r Report) ([]byte, error) {
	body, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("report: encoding body: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(body, nil)

	digest := blake3.Sum256(compressed)

	var buffer bytes.Buffer
	buffer.Grow(len(magic) + 1 + digestSize + len(compressed))
	buffer.Write(magic)
	buffer.WriteByte(formatVersion)
	buffer.Write(digest[:])
	buffer.Write(compressed)
	return buffer.Bytes(), nil
}

// Decode parses and verifies an encoded report. Corruption in the
// header, digest, frame, or body is reported as an error; a report
// that decodes is byte-exact what was written.
func Decode(data []byte) (Report, error) {
	header := len(magic) + 1 + digestSize
	if len(data) < header {
		return Report{}, fmt.Errorf("report: truncated: %d bytes", len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return Report{}, fmt.Errorf("report: bad magic")
	}
	if version := data[len(magic)]; version != formatVersion {
		return Report{}, fmt.Errorf("report: unsupported format version %d", version)
	}

	var digest [digestSize]byte
	copy(digest[:], data[len(magic)+1:header])
	compressed := data[header:]

	if blake3.Sum256(compressed) != digest {
		return Report{}, fmt.Errorf("report: digest mismatch, file corrupted")
	}

	body, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return Report{}, fmt.Errorf("report: decompressing body: %w", err)
	}

	var r Report
	if err := decMode.Unmarshal(body, &r); err != nil {
		return Report{}, fmt.Errorf("report: decoding body: %w", err)
	}
	return r, nil
}

// Write encodes a report and writes it to path with mode 0600.
func Write(path string, r Report) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("report: writing %s: %w", path, err)
	}
	return nil
}

// Read loads and verifies a report file.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("report: reading %s: %w", path, err)
	}
	return Decode(data)
}
