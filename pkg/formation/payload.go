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

package formation

import (
	"strings"

	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

// The default pitching-mound layout, used when the backend never delivered a
// group definition. Mapping indices and rotations must match what the
// definition would have said; these are the values every known backend
// reports for PitchingMound.
const DefaultDefinitionID = "PitchingMound"

var defaultPositions = []models.GroupPosition{
	{PositionID: "Launch Zone", MappingIndex: 0, Rotation: -90},
	{PositionID: "Upper Landing Zone", MappingIndex: 1, Rotation: 0},
	{PositionID: "Lower Landing Zone", MappingIndex: 2, Rotation: 0},
}

// responseKind classifies a creation response by shape, the only available
// signal of backend generation.
type responseKind int

const (
	responseNoSignal responseKind = iota
	responseGroupObject
	responseEphemeral
	responseSavedNeedsRestart
	responseConflict
)

// responseShapeHints maps response event names to the shape each generation
// is expected to produce. Consulted for logging and branch ordering rather
// than inlining string comparisons at every call site; interpretation still
// trusts the payload over the hint, since generations have been seen to
// answer on either event name.
var responseShapeHints = map[string]responseKind{
	models.EventCreateDeviceGroup: responseGroupObject,
	models.EventGroupUpdate:       responseSavedNeedsRestart,
}

type verdict struct {
	kind    responseKind
	groupID string
	message string
}

// interpret classifies one creation response envelope:
//
//	(a) a group object carrying an id field directly (possibly under a
//	    response wrapper),
//	(b) {status:"success", data:{group_id|axfId}} from ephemeral creation,
//	(c) {status:"success", message:"...restart..."} from legacy backends
//	    that persist without activating,
//	(d) an explicit error or message, which is a conflict,
//	(e) anything else, which is no signal.
func interpret(body map[string]any) verdict {
	groupObj := body
	if inner, ok := body["response"].(map[string]any); ok {
		groupObj = inner
	}

	if id := stringField(groupObj, "axfId", "axf_id", "groupId", "group_id", "id"); id != "" {
		return verdict{kind: responseGroupObject, groupID: id}
	}

	status := strings.ToLower(strings.TrimSpace(stringField(body, "status")))
	errMsg := stringField(body, "error")

	if errMsg == "" {
		errMsg = stringField(groupObj, "error")
	}

	msg := stringField(body, "message")

	if status == "success" && errMsg == "" {
		if data, ok := body["data"].(map[string]any); ok {
			if id := stringField(data, "group_id", "groupId", "axfId"); id != "" {
				return verdict{kind: responseEphemeral, groupID: id}
			}
		}

		lower := strings.ToLower(msg)
		if strings.Contains(lower, "restart") || strings.Contains(lower, "saved successfully") {
			return verdict{kind: responseSavedNeedsRestart, message: msg}
		}

		return verdict{kind: responseNoSignal}
	}

	if errMsg != "" {
		return verdict{kind: responseConflict, message: errMsg}
	}

	if msg != "" {
		return verdict{kind: responseConflict, message: msg}
	}

	return verdict{kind: responseNoSignal}
}

// buildMappings assembles the creation mappings from the backend's group
// definition when one was received, falling back to the hard-coded defaults
// otherwise. Positions with no requested device are dropped.
func (p *Protocol) buildMappings(req Request) (string, []models.GroupMapping) {
	defID := req.DefinitionID
	if defID == "" {
		defID = DefaultDefinitionID
	}

	positions := p.lookupPositions(defID)
	if len(positions) == 0 {
		positions = defaultPositions
	}

	mappings := make([]models.GroupMapping, 0, len(positions))

	for _, pos := range positions {
		deviceID := strings.TrimSpace(req.Mapping[pos.PositionID])
		if deviceID == "" {
			continue
		}

		mappings = append(mappings, models.GroupMapping{
			PositionID:   pos.PositionID,
			MappingIndex: pos.MappingIndex,
			DeviceID:     deviceID,
			Rotation:     pos.Rotation,
		})
	}

	return defID, mappings
}

func (p *Protocol) lookupPositions(defID string) []models.GroupPosition {
	snap := p.dir.Snapshot()

	for i := range snap.Definitions {
		def := snap.Definitions[i]

		if strings.EqualFold(def.DefinitionID, defID) || containsAllWords(strings.ToLower(def.Name), defID) {
			return def.RequiredPositions
		}
	}

	return nil
}

// snakePayload matches the DynamoPy DeviceGroupCreationData schema used by
// createTemporaryGroup and the legacy saveGroup.
func snakePayload(defID, name string, mappings []models.GroupMapping) map[string]any {
	ms := make([]map[string]any, 0, len(mappings))

	for _, m := range mappings {
		ms = append(ms, map[string]any{
			"position_id":   m.PositionID,
			"mapping_index": m.MappingIndex,
			"device_id":     m.DeviceID,
			"rotation":      m.Rotation,
		})
	}

	return map[string]any{
		"group_definition_id":     defID,
		"name":                    name,
		"disable_virtual_devices": false,
		"mappings":                ms,
	}
}

// camelPayload matches the newer createDeviceGroup schema.
func camelPayload(defID, name string, mappings []models.GroupMapping) map[string]any {
	ms := make([]map[string]any, 0, len(mappings))

	for _, m := range mappings {
		ms = append(ms, map[string]any{
			"positionId":   m.PositionID,
			"mappingIndex": m.MappingIndex,
			"deviceId":     m.DeviceID,
			"rotation":     m.Rotation,
		})
	}

	return map[string]any{
		"groupDefinitionId":     defID,
		"name":                  name,
		"disableVirtualDevices": false,
		"mappings":              ms,
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}

	return ""
}
