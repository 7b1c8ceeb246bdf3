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

package compression

import "emberraft/internal/wire"

// BitFor returns the HANDSHAKE capability bit a locally supported algorithm
// advertises. Gzip has no wire bit: it is a stdlib fallback offered to
// in-process callers, never negotiated with a peer.
func BitFor(a Algorithm) uint8 {
	switch a {
	case AlgorithmSnappy:
		return wire.CodecSnappy
	case AlgorithmLZ4:
		return wire.CodecLZ4
	case AlgorithmZstd:
		return wire.CodecZstd
	default:
		return wire.CodecNone
	}
}

// AlgorithmForBit reverses BitFor, defaulting to AlgorithmNone for an
// unrecognized or zero bit.
func AlgorithmForBit(bit uint8) Algorithm {
	switch bit {
	case wire.CodecSnappy:
		return AlgorithmSnappy
	case wire.CodecLZ4:
		return AlgorithmLZ4
	case wire.CodecZstd:
		return AlgorithmZstd
	default:
		return AlgorithmNone
	}
}

// SupportedBitset is every codec this build can negotiate, advertised in
// the SupportedCodecs field of every outbound HANDSHAKE.
func SupportedBitset() uint8 {
	return wire.CodecNone | wire.CodecSnappy | wire.CodecLZ4 | wire.CodecZstd
}

// Negotiate picks the best codec both sides advertised, preferring ratio
// over speed: zstd, then lz4, then snappy, then none.
func Negotiate(local, peer uint8) uint8 {
	common := local & peer
	switch {
	case common&wire.CodecZstd != 0:
		return wire.CodecZstd
	case common&wire.CodecLZ4 != 0:
		return wire.CodecLZ4
	case common&wire.CodecSnappy != 0:
		return wire.CodecSnappy
	default:
		return wire.CodecNone
	}
}
