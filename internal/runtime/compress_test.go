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

package runtime

import (
	"bytes"
	"testing"

	"emberraft/internal/wire"
)

func TestCompressEntriesRoundTrip(t *testing.T) {
	big := bytes.Repeat([]byte("replicate me "), 100) // well past the threshold
	small := []byte{0xDE, 0xAD}                       // below it, shipped verbatim behind a tag
	membership := []byte{1, 2, 3, 4}

	entries := []wire.Entry{
		{Index: 1, Term: 1, Type: wire.EntryNormal, Payload: big},
		{Index: 2, Term: 1, Type: wire.EntryNormal, Payload: small},
		{Index: 3, Term: 1, Type: wire.EntryAddNonvoting, Payload: membership},
	}

	for _, codec := range []uint8{wire.CodecNone, wire.CodecSnappy, wire.CodecLZ4, wire.CodecZstd} {
		out := compressEntries(entries, codec)

		if !bytes.Equal(out[2].Payload, membership) {
			t.Fatalf("codec %d: membership payload must never be touched", codec)
		}
		if codec != wire.CodecNone && bytes.Equal(out[0].Payload, big) {
			t.Fatalf("codec %d: large Normal payload should have been transformed on the wire", codec)
		}

		if err := decompressEntries(out); err != nil {
			t.Fatalf("codec %d: decompressEntries: %v", codec, err)
		}
		if !bytes.Equal(out[0].Payload, big) {
			t.Errorf("codec %d: large payload did not round-trip", codec)
		}
		if !bytes.Equal(out[1].Payload, small) {
			t.Errorf("codec %d: small payload did not round-trip, got %x", codec, out[1].Payload)
		}
		if !bytes.Equal(out[2].Payload, membership) {
			t.Errorf("codec %d: membership payload did not round-trip", codec)
		}
	}

	// The originals must be left alone: compressEntries copies.
	if !bytes.Equal(entries[0].Payload, big) || !bytes.Equal(entries[1].Payload, small) {
		t.Error("compressEntries must not mutate its input entries")
	}
}

func TestDecompressEntriesRejectsUndecodablePayloads(t *testing.T) {
	unknownTag := []wire.Entry{
		{Index: 1, Term: 1, Type: wire.EntryNormal, Payload: []byte{0x77, 0x01, 0x02}},
	}
	if err := decompressEntries(unknownTag); err == nil {
		t.Error("expected an error for an unknown codec tag, got nil")
	}

	corrupt := []wire.Entry{
		{Index: 2, Term: 1, Type: wire.EntryNormal, Payload: append([]byte{wire.CodecZstd}, 0xDE, 0xAD, 0xBE, 0xEF)},
	}
	if err := decompressEntries(corrupt); err == nil {
		t.Error("expected an error for a corrupted compressed payload, got nil")
	}
}
