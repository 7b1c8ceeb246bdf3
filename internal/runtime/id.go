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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

// idCounter disambiguates IDs minted within the same process tick.
var idCounter uint64

// generateID mints a unique ID in the form <prefix>-<counter>-<random_hex>.
func generateID(prefix string) string {
	counter := atomic.AddUint64(&idCounter, 1)
	randomBytes := make([]byte, 8)
	rand.Read(randomBytes)
	return fmt.Sprintf("%s-%d-%s", prefix, counter, hex.EncodeToString(randomBytes))
}

// GenerateWakeHandleID mints a unique ID for a Commit Rendezvous wake handle.
func GenerateWakeHandleID() string {
	return generateID("wake")
}

// GenerateTaskID mints a unique correlation ID for a Task Queue command.
func GenerateTaskID() string {
	return generateID("task")
}
