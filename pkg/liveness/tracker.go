/*
 * Copyright 2025 Axioforce Inc.
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

// Package liveness maintains the decaying set of devices that are actually
// streaming right now. The telemetry stream can exceed 400 Hz, so change
// notifications are bounded to set transitions, not packet rate.
package liveness

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
)

// DefaultDecayWindow is how long a device stays active after its last packet.
const DefaultDecayWindow = time.Second

// Tracker tracks last-seen timestamps per device and derives the active set.
// Mutations happen on the transport dispatch path; readers get copies.
type Tracker struct {
	mu       sync.Mutex
	window   time.Duration
	lastSeen map[string]time.Time
	active   map[string]struct{}
	now      func() time.Time
	log      zerolog.Logger
}

// NewTracker creates a Tracker. A non-positive window falls back to the
// default 1s.
func NewTracker(window time.Duration, log logger.Logger) *Tracker {
	if window <= 0 {
		window = DefaultDecayWindow
	}

	return &Tracker{
		window:   window,
		lastSeen: make(map[string]time.Time),
		active:   make(map[string]struct{}),
		now:      time.Now,
		log:      log.WithComponent("liveness"),
	}
}

// Observe folds one telemetry payload into the tracker. It returns the new
// active set and true only when set membership changed; a steady-state packet
// returns (nil, false).
func (t *Tracker) Observe(payload any) ([]string, bool) {
	ids := extractDeviceIDs(payload)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	for _, id := range ids {
		t.lastSeen[id] = now
	}

	return t.recomputeLocked(now)
}

// Expire drops entries older than the decay window without observing new
// data. Callers poll this so devices age out even when the stream goes quiet.
func (t *Tracker) Expire() ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.recomputeLocked(t.now())
}

// Clear forces the active set empty immediately, used on channel disconnect
// or an explicit zero-connected-devices notification, rather than waiting
// for natural decay.
func (t *Tracker) Clear() ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSeen = make(map[string]time.Time)

	if len(t.active) == 0 {
		return nil, false
	}

	t.active = make(map[string]struct{})

	return []string{}, true
}

// Active returns a sorted copy of the current active set.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return sortedKeys(t.active)
}

// recomputeLocked rebuilds the active set, purging stale entries outright so
// the map's cardinality always equals the count of ids inside the window.
func (t *Tracker) recomputeLocked(now time.Time) ([]string, bool) {
	next := make(map[string]struct{}, len(t.lastSeen))

	for id, seen := range t.lastSeen {
		if now.Sub(seen) <= t.window {
			next[id] = struct{}{}
		} else {
			delete(t.lastSeen, id)
		}
	}

	if sameSet(next, t.active) {
		return nil, false
	}

	t.active = next
	out := sortedKeys(next)

	t.log.Debug().Int("count", len(out)).Msg("Active device set changed")

	return out, true
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}

	return true
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// extractDeviceIDs pulls device identifiers out of a telemetry payload.
// Accepted shapes: a single device object, a list of device objects, or a
// container with a devices field that is itself a list or a map keyed by id.
func extractDeviceIDs(payload any) []string {
	var ids []string

	appendID := func(m map[string]any) {
		for _, key := range []string{"deviceId", "device_id", "id"} {
			if v, ok := m[key]; ok {
				if s, ok := v.(string); ok && s != "" {
					ids = append(ids, s)
					return
				}
			}
		}
	}

	switch val := payload.(type) {
	case []any:
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				appendID(m)
			}
		}
	case map[string]any:
		if _, ok := val["deviceId"]; ok {
			appendID(val)
			return ids
		}

		if _, ok := val["device_id"]; ok {
			appendID(val)
			return ids
		}

		if _, ok := val["id"]; ok {
			appendID(val)
			return ids
		}

		switch devs := val["devices"].(type) {
		case []any:
			for _, item := range devs {
				if m, ok := item.(map[string]any); ok {
					appendID(m)
				}
			}
		case map[string]any:
			for id := range devs {
				if id != "" {
					ids = append(ids, id)
				}
			}
		}
	}

	return ids
}
