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

package config

import "testing"

func TestDefaultFramerConfig(t *testing.T) {
	c := DefaultFramerConfig()
	if c.MaxFrameSize != 1<<20 {
		t.Errorf("expected 1MiB max frame size, got %d", c.MaxFrameSize)
	}
}

func TestDefaultElectionConfigRange(t *testing.T) {
	c := DefaultElectionConfig()
	if c.TimeoutMin >= c.TimeoutMax {
		t.Errorf("expected TimeoutMin < TimeoutMax, got min=%v max=%v", c.TimeoutMin, c.TimeoutMax)
	}
}

func TestDefaultReconnectConfigGrowsBounded(t *testing.T) {
	c := DefaultReconnectConfig()
	if c.Factor <= 1 {
		t.Errorf("expected backoff factor > 1, got %v", c.Factor)
	}
	if c.BaseDelay >= c.MaxDelay {
		t.Errorf("expected BaseDelay < MaxDelay, got base=%v max=%v", c.BaseDelay, c.MaxDelay)
	}
}

func TestDefaultJournalConfigSyncsByDefault(t *testing.T) {
	if !DefaultJournalConfig().SyncEach {
		t.Error("expected SyncEach to default to true")
	}
}
