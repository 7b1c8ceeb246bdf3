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

package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestRuntimeErrorBasic(t *testing.T) {
	err := NewTransportError(CodeDecodeError, "bad frame")

	if err.Code != CodeDecodeError {
		t.Errorf("Expected code %s, got %s", CodeDecodeError, err.Code)
	}
	if err.Category != CategoryTransport {
		t.Errorf("Expected category %s, got %s", CategoryTransport, err.Category)
	}
	if !strings.Contains(err.Error(), "bad frame") {
		t.Errorf("Expected error message to contain 'bad frame', got: %s", err.Error())
	}
}

func TestRuntimeErrorWithDetail(t *testing.T) {
	err := NewProtocolError(CodeVoteRefused, "vote refused").WithDetail("already voted")

	if err.Detail != "already voted" {
		t.Errorf("Expected detail 'already voted', got: %s", err.Detail)
	}
	if !strings.Contains(err.Error(), "already voted") {
		t.Errorf("Expected error to contain detail, got: %s", err.Error())
	}
}

func TestRuntimeErrorWithCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewDurabilityError(CodeJournalAppend, "append failed", cause)

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to match through Unwrap")
	}
}

func TestTransportErrorConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *RuntimeError
		code Code
	}{
		{"FramerOverflow", FramerOverflow(2_000_000, 1<<20), CodeFramerOverflow},
		{"DecodeError", DecodeError("short frame"), CodeDecodeError},
		{"WriteFailure", WriteFailure(errors.New("broken pipe")), CodeWriteFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.Category != CategoryTransport {
				t.Errorf("Expected category %s, got %s", CategoryTransport, tt.err.Category)
			}
		})
	}
}

func TestProtocolErrorConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *RuntimeError
		code Code
	}{
		{"StaleTerm", StaleTerm(3, 5), CodeStaleTerm},
		{"LogMismatch", LogMismatch(10, 2), CodeLogMismatch},
		{"VoteRefused", VoteRefused("already voted for 4"), CodeVoteRefused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.Category != CategoryProtocol {
				t.Errorf("Expected category %s, got %s", CategoryProtocol, tt.err.Category)
			}
		})
	}
}

func TestDurabilityErrorIsFatal(t *testing.T) {
	err := JournalAppendFailed(42, errors.New("disk full"))

	if !IsDurability(err) {
		t.Error("Expected JournalAppendFailed to be a durability error")
	}
	if CodeOf(err) != CodeJournalAppend {
		t.Errorf("Expected code %s, got %s", CodeJournalAppend, CodeOf(err))
	}
}

func TestNotLeaderHint(t *testing.T) {
	redirect := NotLeader("10.0.0.2", 9001)
	if !strings.Contains(redirect.Hint, "10.0.0.2:9001") {
		t.Errorf("Expected redirect hint to name leader address, got: %s", redirect.Hint)
	}

	unknown := NotLeader("", 0)
	if !strings.Contains(unknown.Hint, "unknown") {
		t.Errorf("Expected unknown-leader hint, got: %s", unknown.Hint)
	}
}

func TestSubmitTimeoutIsUncertain(t *testing.T) {
	err := SubmitTimeout()
	if !strings.Contains(err.Hint, "uncertain") {
		t.Errorf("Expected timeout hint to mark outcome uncertain, got: %s", err.Hint)
	}
}

func TestConfigurationErrorConstructors(t *testing.T) {
	unknown := UnknownGroup("group-a")
	if unknown.Category != CategoryConfiguration {
		t.Errorf("Expected category %s, got %s", CategoryConfiguration, unknown.Category)
	}
	if unknown.Detail != "group-a" {
		t.Errorf("Expected detail 'group-a', got: %s", unknown.Detail)
	}

	dup := DuplicateNodeID(7)
	if dup.Code != CodeDuplicateNodeID {
		t.Errorf("Expected code %s, got %s", CodeDuplicateNodeID, dup.Code)
	}
}

func TestCategoryOfNonRuntimeError(t *testing.T) {
	if CategoryOf(errors.New("plain")) != "" {
		t.Error("Expected empty category for a non-RuntimeError")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("Expected empty code for a non-RuntimeError")
	}
}
