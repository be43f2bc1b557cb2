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

// Package formation negotiates the creation of composite virtual-group
// devices against at least three backend API generations. The generations
// share no schema and expose no version field; the protocol infers which one
// it is talking to from response shape alone.
package formation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
	"github.com/calebkmiecik/FluxDeluxe/pkg/transport"
)

const (
	// One fallback attempt via a differently-named legacy command when the
	// primary create gets no recognizable response. Not a loop.
	fallbackDelay       = 1200 * time.Millisecond
	secondFallbackDelay = 2400 * time.Millisecond

	// Legacy activation is backend-dependent and unbounded in the single
	// sample, so the recheck runs twice.
	firstRecheckDelay  = 1500 * time.Millisecond
	secondRecheckDelay = 3 * time.Second

	reinitAliasDelay = 500 * time.Millisecond
	refreshDelay     = 500 * time.Millisecond

	// Terminal deadline for a request the backend never answers. The field
	// behavior this replaces left such requests pending forever.
	terminalDeadline = 10 * time.Second
)

// Channel is the slice of the transport client the protocol needs.
type Channel interface {
	Emit(event string, data any)
	On(event string, handler transport.Handler)
	Once(event string, handler transport.Handler)
	Post(fn func())
	Connected() bool
}

// DirectoryView supplies cached directory state as immutable snapshots.
type DirectoryView interface {
	Snapshot() models.DirectorySnapshot
}

// Request describes one desired group: logical positions mapped to physical
// device ids. OnResult fires exactly once, on the dispatch goroutine.
type Request struct {
	Mapping         map[string]string
	DefinitionID    string
	GroupName       string
	CreateIfMissing bool
	OnResult        func(models.FormationOutcome)
}

type stage int

const (
	stageInitial stage = iota
	stageRetry
	stageReinitWait
)

// pending is the transient state of one in-flight formation attempt. It is
// destroyed on resolution or superseded by a newer request; a connection
// drop abandons it silently.
type pending struct {
	id         uuid.UUID
	req        Request
	normalized map[string]string
	stage      stage
	resolved   bool
	reinitAck  bool
	cancels    []func()
}

// Protocol runs the find-or-create state machine. All state is owned by the
// transport dispatch goroutine; public methods marshal onto it via Post.
type Protocol struct {
	channel Channel
	dir     DirectoryView
	refresh func()
	log     zerolog.Logger

	schedule func(d time.Duration, fn func()) func()

	cur *pending
}

// New wires a Protocol to the channel. Response handlers are registered for
// both status event names, since backend generations disagree on which one
// carries the answer.
func New(channel Channel, dir DirectoryView, refresh func(), log logger.Logger) *Protocol {
	p := &Protocol{
		channel: channel,
		dir:     dir,
		refresh: refresh,
		log:     log.WithComponent("formation"),
	}

	p.schedule = func(d time.Duration, fn func()) func() {
		t := time.AfterFunc(d, func() { channel.Post(fn) })
		return func() { t.Stop() }
	}

	for name := range responseShapeHints {
		event := name
		channel.On(event, func(data any) { p.onCreateStatus(event, data) })
	}
	channel.On(models.EventDisconnect, func(any) { p.abandon() })

	return p
}

// FindOrCreate starts a formation request. A newer request supersedes any
// still-pending one.
func (p *Protocol) FindOrCreate(req Request) {
	p.channel.Post(func() { p.start(req) })
}

func (p *Protocol) start(req Request) {
	p.abandon()

	cur := &pending{
		id:         uuid.New(),
		req:        req,
		normalized: normalizeMapping(req.Mapping),
	}
	p.cur = cur

	if !p.channel.Connected() {
		p.resolve(cur, models.FormationOutcome{
			Status: models.FormationError,
			Error:  "not connected to backend",
		})

		return
	}

	if g, ok := p.match(cur); ok {
		p.log.Info().Str("group_id", g.GroupID).Msg("Found existing group")
		p.resolve(cur, models.FormationOutcome{
			Status:  models.FormationFound,
			GroupID: g.GroupID,
			Group:   g,
		})

		return
	}

	if !req.CreateIfMissing {
		p.resolve(cur, models.FormationOutcome{
			Status: models.FormationError,
			Error:  "no matching group and creation disabled",
		})

		return
	}

	p.create(cur)
}

// match scans cached group instances for an exact position→device equality
// with the desired mapping, both directions, order- and case-insensitive.
func (p *Protocol) match(cur *pending) (*models.GroupInstance, bool) {
	snap := p.dir.Snapshot()

	for i := range snap.Groups {
		g := snap.Groups[i]

		if !definitionMatches(&g, cur.req.DefinitionID) {
			continue
		}

		if mappingEqual(g.PositionMap(), cur.normalized) {
			return &g, true
		}
	}

	return nil, false
}

// create emits the primary creation command and arms the fallback, recheck
// and terminal timers.
func (p *Protocol) create(cur *pending) {
	defID, mappings := p.buildMappings(cur.req)
	cur.stage = stageInitial

	p.log.Info().
		Str("definition_id", defID).
		Str("name", cur.req.GroupName).
		Int("positions", len(mappings)).
		Msg("Creating group")

	p.channel.Emit(models.CmdCreateTemporaryGroup, snakePayload(defID, cur.req.GroupName, mappings))

	p.arm(cur, fallbackDelay, func() {
		if cur.stage != stageInitial {
			return
		}

		cur.stage = stageRetry

		p.log.Warn().Msg("No creation response; retrying once via createDeviceGroup")
		p.channel.Emit(models.CmdCreateDeviceGroup, camelPayload(defID, cur.req.GroupName, mappings))
	})

	p.arm(cur, secondFallbackDelay, func() {
		if cur.stage != stageRetry {
			return
		}

		p.log.Warn().Msg("Still no creation response; final fallback via saveGroup")
		p.channel.Emit(models.CmdSaveGroup, snakePayload(defID, cur.req.GroupName, mappings))
	})

	p.arm(cur, terminalDeadline, func() {
		p.resolve(cur, models.FormationOutcome{
			Status: models.FormationError,
			Error:  "group creation timed out waiting for backend",
		})
	})
}

// onCreateStatus interprets a creation response. Responses arriving with no
// request pending, or after resolution, belong to stale attempts from a
// prior connection epoch and are ignored.
func (p *Protocol) onCreateStatus(event string, payload any) {
	cur := p.cur
	if cur == nil || cur.resolved {
		return
	}

	body, ok := payload.(map[string]any)
	if !ok {
		p.log.Warn().Str("event", event).Msg("Unrecognized creation response shape")
		return
	}

	v := interpret(body)

	if hint, ok := responseShapeHints[event]; ok && v.kind != responseNoSignal && v.kind != hint {
		// Generations have been seen answering on either event name; the
		// payload wins, the hint is just for the log.
		p.log.Debug().Str("event", event).Msg("Response shape differs from event's usual generation")
	}

	switch v.kind {
	case responseGroupObject, responseEphemeral:
		p.log.Info().Str("group_id", v.groupID).Msg("Group created")
		p.scheduleRefresh()
		p.resolve(cur, models.FormationOutcome{
			Status:  models.FormationCreated,
			GroupID: v.groupID,
			Group:   p.instanceFor(cur, v.groupID),
		})
	case responseSavedNeedsRestart:
		p.reinitialize(cur)
	case responseConflict:
		p.resolve(cur, models.FormationOutcome{
			Status: models.FormationError,
			Error:  v.message,
		})
	case responseNoSignal:
		// Shape mismatch is no signal; the fallback and terminal timers
		// stay armed.
		p.log.Warn().Msg("Creation response carried no recognizable signal")
	}
}

// reinitialize handles the legacy activation path: the group is persisted
// but not instantiated until device groups are rebuilt. Emit the reinit
// command (older alias if the first goes unacknowledged), then re-match
// against refreshed directory state without re-creating.
func (p *Protocol) reinitialize(cur *pending) {
	cur.stage = stageReinitWait

	p.log.Info().Msg("Group saved by legacy backend; reinitializing device groups")
	p.channel.Emit(models.CmdReinitializeGroups, nil)

	p.channel.Once(models.EventReinitializeGroups, func(any) { cur.reinitAck = true })

	p.arm(cur, reinitAliasDelay, func() {
		if !cur.reinitAck {
			p.channel.Emit(models.CmdReinitializeConnected, nil)
		}
	})

	recheck := func() {
		if g, ok := p.match(cur); ok {
			p.log.Info().Str("group_id", g.GroupID).Msg("Group active after reinitialize")
			p.resolve(cur, models.FormationOutcome{
				Status:  models.FormationFound,
				GroupID: g.GroupID,
				Group:   g,
			})
		}
	}

	p.arm(cur, firstRecheckDelay, func() { p.refresh(); p.arm(cur, refreshDelay, recheck) })
	p.arm(cur, secondRecheckDelay, func() { p.refresh(); p.arm(cur, refreshDelay, recheck) })
}

// scheduleRefresh pulls fresh directory state shortly after creation so the
// runtime group shows up in the connected-groups cache.
func (p *Protocol) scheduleRefresh() {
	p.schedule(refreshDelay, p.refresh)
}

// instanceFor builds a minimal GroupInstance from the request's own mapping,
// so callers can use the group id immediately without waiting for the next
// directory refresh.
func (p *Protocol) instanceFor(cur *pending, groupID string) *models.GroupInstance {
	defID, mappings := p.buildMappings(cur.req)

	return &models.GroupInstance{
		GroupID:      groupID,
		Name:         cur.req.GroupName,
		DefinitionID: defID,
		Mappings:     mappings,
	}
}

// arm schedules fn, skipping it if the request has resolved by then.
func (p *Protocol) arm(cur *pending, d time.Duration, fn func()) {
	cancel := p.schedule(d, func() {
		if cur.resolved || p.cur != cur {
			return
		}

		fn()
	})

	cur.cancels = append(cur.cancels, cancel)
}

// resolve delivers the single outcome for the request and tears it down.
func (p *Protocol) resolve(cur *pending, outcome models.FormationOutcome) {
	if cur.resolved {
		return
	}

	cur.resolved = true

	for _, cancel := range cur.cancels {
		cancel()
	}

	cur.cancels = nil

	if p.cur == cur {
		p.cur = nil
	}

	if cur.req.OnResult != nil {
		cur.req.OnResult(outcome)
	}
}

// abandon silently drops the pending request, if any. Used when the
// connection falls over before resolution or a newer request supersedes it;
// the caller re-invokes after reconnect.
func (p *Protocol) abandon() {
	cur := p.cur
	if cur == nil {
		return
	}

	p.cur = nil
	cur.resolved = true

	for _, cancel := range cur.cancels {
		cancel()
	}

	cur.cancels = nil

	p.log.Debug().Str("request_id", cur.id.String()).Msg("Formation request abandoned")
}

func normalizeMapping(mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping))
	for pos, id := range mapping {
		out[pos] = models.NormalizeDeviceID(id)
	}

	return out
}

func mappingEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}

	for pos, id := range a {
		if b[pos] != id {
			return false
		}
	}

	return true
}

// definitionMatches accepts either a human configuration label or the
// canonical definition id; generations populate different fields.
func definitionMatches(g *models.GroupInstance, defID string) bool {
	want := strings.ToLower(strings.TrimSpace(defID))
	if want == "" {
		return true
	}

	if strings.EqualFold(g.DefinitionID, defID) {
		return true
	}

	label := strings.ToLower(g.ConfigurationLabel)
	if label != "" && (strings.Contains(label, want) || strings.Contains(want, label)) {
		return true
	}

	// Split ids like "PitchingMound" into words and accept labels such as
	// "Pitching Mound".
	if label != "" && containsAllWords(label, defID) {
		return true
	}

	return false
}

func containsAllWords(label, id string) bool {
	words := splitCamelish(strings.TrimSpace(id))
	if len(words) == 0 {
		return false
	}

	for _, w := range words {
		if !strings.Contains(label, w) {
			return false
		}
	}

	return true
}

func splitCamelish(s string) []string {
	var words []string

	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || (s[i] >= 'A' && s[i] <= 'Z') {
			w := strings.ToLower(strings.TrimSpace(s[start:i]))
			if w != "" {
				words = append(words, w)
			}

			start = i
		}
	}

	return words
}
