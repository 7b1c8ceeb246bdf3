/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package wire implements emberraft's peer-to-peer binary protocol: the
length-prefixed framer (this file) and the tagged Raft message envelope
(message.go).

Wire Frame:
===========

	+------------------+------------------+
	| Length (8B, LE)  | Payload (L-8B)   |
	+------------------+------------------+

Length is the total frame size including the 8-byte prefix itself. The
framer accumulates bytes from short reads in a staging buffer and only
yields a payload once a complete frame has arrived.
*/
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// LengthPrefixSize is the size, in bytes, of the frame's length prefix.
const LengthPrefixSize = 8

// DefaultMaxFrameSize is the default cap on total frame size (including the prefix).
const DefaultMaxFrameSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge and ErrMalformedLength are fatal, connection-level errors
// per the error handling design: the connection must be dropped and its
// framer buffer discarded.
var (
	ErrFrameTooLarge   = fmt.Errorf("wire: frame length exceeds maximum")
	ErrMalformedLength = fmt.Errorf("wire: frame length shorter than the length prefix itself")
)

// Framer accumulates bytes from a reliable ordered byte stream and yields
// complete frame payloads. It is not safe for concurrent use; each
// Connection owns exactly one Framer, fed only from that Connection's read
// loop goroutine.
type Framer struct {
	buf     []byte
	maxSize int
}

// NewFramer creates a Framer that rejects any frame whose declared total
// length exceeds maxSize. A maxSize of 0 uses DefaultMaxFrameSize.
func NewFramer(maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Framer{maxSize: maxSize}
}

// Feed appends chunk to the staging buffer and extracts every complete
// frame now available, in arrival order. The peek-then-consume discipline
// is idempotent across arbitrarily short reads: calling Feed repeatedly
// with single bytes of the same stream yields the same payloads as calling
// it once with the whole stream.
func (f *Framer) Feed(chunk []byte) ([][]byte, error) {
	f.buf = append(f.buf, chunk...)

	var payloads [][]byte
	for {
		if len(f.buf) < LengthPrefixSize {
			break
		}
		length := binary.LittleEndian.Uint64(f.buf[:LengthPrefixSize])
		if length < LengthPrefixSize {
			return payloads, ErrMalformedLength
		}
		if int(length) > f.maxSize {
			return payloads, ErrFrameTooLarge
		}
		if uint64(len(f.buf)) < length {
			break
		}

		payload := make([]byte, length-LengthPrefixSize)
		copy(payload, f.buf[LengthPrefixSize:length])
		payloads = append(payloads, payload)

		f.buf = f.buf[length:]
	}
	return payloads, nil
}

// Reset discards any partially staged frame, per the disconnect policy:
// on transport error the Connection's framer buffer is cleared.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// WriteFrame writes payload to w as one complete frame (length prefix plus
// payload). It performs a single Write call so a non-blocking socket write
// either succeeds for the whole frame or fails atomically.
func WriteFrame(w io.Writer, payload []byte) error {
	total := uint64(LengthPrefixSize + len(payload))
	frame := make([]byte, total)
	binary.LittleEndian.PutUint64(frame[:LengthPrefixSize], total)
	copy(frame[LengthPrefixSize:], payload)
	_, err := w.Write(frame)
	return err
}
