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
Package config holds the plain configuration structs for every emberraft
component. Each gets a Default*Config() constructor; callers override
fields directly afterward. No env/flag binding happens here — that is
cmd/emberraftd's job.
*/
package config

import "time"

// FramerConfig configures the length-prefixed framer (internal/wire).
type FramerConfig struct {
	MaxFrameSize int // maximum total frame size in bytes, including the 8-byte length prefix
}

// DefaultFramerConfig returns sensible defaults.
func DefaultFramerConfig() FramerConfig {
	return FramerConfig{
		MaxFrameSize: 1 << 20, // 1 MiB
	}
}

// LoopConfig configures the event loop (internal/runtime).
type LoopConfig struct {
	TickInterval time.Duration // periodic tick interval P
	SelfPort     uint16
}

// DefaultLoopConfig returns sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickInterval: 100 * time.Millisecond,
	}
}

// JournalConfig configures the disk-backed journal engine (internal/journal).
type JournalConfig struct {
	Dir      string // directory holding the log and state files
	SyncEach bool   // fsync after every durable write (always true for the production engine; exposed for tests)
}

// DefaultJournalConfig returns sensible defaults.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		SyncEach: true,
	}
}

// ElectionConfig configures Raft election timing (internal/raft).
type ElectionConfig struct {
	TimeoutMin time.Duration
	TimeoutMax time.Duration
}

// DefaultElectionConfig returns sensible defaults. The randomized range
// between Min and Max is what prevents split votes from recurring forever.
func DefaultElectionConfig() ElectionConfig {
	return ElectionConfig{
		TimeoutMin: 500 * time.Millisecond,
		TimeoutMax: 1000 * time.Millisecond,
	}
}

// ReconnectConfig configures the Peer Connection Registry's backoff policy.
type ReconnectConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	Jitter    float64 // fraction of the computed delay to randomize, e.g. 0.2 = ±20%
}

// DefaultReconnectConfig returns sensible defaults, grounded on the
// bounded-exponential-backoff-with-jitter policy named in the design notes.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Factor:    2,
		Jitter:    0.2,
	}
}

// PromotionConfig configures when a non-voting node is promoted to voter.
type PromotionConfig struct {
	// CatchUpRounds is the number of consecutive replication acks during
	// which a non-voting node's match_idx must track within CatchUpLag of
	// the leader's last log index before an AddVoter entry is appended.
	// The counter resets whenever the node falls behind.
	CatchUpRounds int
	CatchUpLag    uint64
}

// DefaultPromotionConfig returns sensible defaults.
func DefaultPromotionConfig() PromotionConfig {
	return PromotionConfig{
		CatchUpRounds: 3,
		CatchUpLag:    0,
	}
}
