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

// Package directory caches the backend's reported device list, group-type
// definitions and instantiated groups, normalizing the heterogeneous
// response envelopes of several backend generations into one shape.
package directory

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

// Directory is the device/group cache. Mutated only by the transport
// dispatch path; readers take immutable snapshots.
type Directory struct {
	mu          sync.RWMutex
	devices     map[string]models.Device
	deviceOrder []string // insertion order of first discovery
	lastReport  []string // ids in the most recent device-list event
	groups      []models.GroupInstance
	definitions []models.GroupDefinition
	now         func() time.Time
	log         zerolog.Logger
}

func New(log logger.Logger) *Directory {
	return &Directory{
		devices: make(map[string]models.Device),
		now:     time.Now,
		log:     log.WithComponent("directory"),
	}
}

// OnDeviceList folds a device-list style event into the cache and returns
// the flattened device list. Backends may report flat devices or groups
// whose nested devices lists must be flattened; that difference is invisible
// to consumers. An unrecognized payload reports an empty list; previously
// discovered devices stay cached and visible through Snapshot.
func (d *Directory) OnDeviceList(payload any) []models.Device {
	items, shape := decodeEnvelope(payload)
	if shape == ShapeEmpty {
		d.mu.Lock()
		d.lastReport = d.lastReport[:0]
		d.mu.Unlock()

		return []models.Device{}
	}

	flattened := flattenDeviceItems(items)

	d.mu.Lock()

	seen := d.now()
	d.lastReport = d.lastReport[:0]
	devices := make([]models.Device, 0, len(flattened))

	for _, item := range flattened {
		dev, ok := decodeDevice(item, seen)
		if !ok {
			continue
		}

		if _, known := d.devices[dev.AxfID]; !known {
			d.deviceOrder = append(d.deviceOrder, dev.AxfID)
			d.log.Debug().Str("axf_id", dev.AxfID).Str("type", dev.DeviceType).Msg("Device discovered")
		}

		d.devices[dev.AxfID] = dev
		d.lastReport = append(d.lastReport, dev.AxfID)
		devices = append(devices, dev)
	}

	d.mu.Unlock()

	return devices
}

// OnGroupList replaces the cached instantiated-group list.
func (d *Directory) OnGroupList(payload any) []models.GroupInstance {
	items, shape := decodeEnvelope(payload)
	if shape == ShapeEmpty {
		d.mu.Lock()
		d.groups = nil
		d.mu.Unlock()

		return nil
	}

	groups := make([]models.GroupInstance, 0, len(items))

	for _, item := range items {
		if g, ok := decodeGroup(item); ok {
			groups = append(groups, g)
		}
	}

	d.mu.Lock()
	d.groups = groups
	d.mu.Unlock()

	return groups
}

// OnGroupDefinitions replaces the cached group-type definitions.
func (d *Directory) OnGroupDefinitions(payload any) []models.GroupDefinition {
	items, _ := decodeEnvelope(payload)

	defs := make([]models.GroupDefinition, 0, len(items))

	for _, item := range items {
		if def, ok := decodeDefinition(item); ok {
			defs = append(defs, def)
		}
	}

	d.mu.Lock()
	d.definitions = defs
	d.mu.Unlock()

	return defs
}

// ResolveGroupForDevice returns the id of the group that references the
// device, searching the devices, mappings and members relations in that
// order; a device may appear under any of the three depending on backend
// generation.
func (d *Directory) ResolveGroupForDevice(deviceID string) (string, bool) {
	norm := models.NormalizeDeviceID(deviceID)
	if norm == "" {
		return "", false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := range d.groups {
		if d.groups[i].GroupID == "" {
			continue
		}

		if d.groups[i].ContainsDevice(norm) {
			return d.groups[i].GroupID, true
		}
	}

	return "", false
}

// Snapshot returns an immutable copy of the cached directory state.
func (d *Directory) Snapshot() models.DirectorySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := models.DirectorySnapshot{
		Devices:     make([]models.Device, 0, len(d.deviceOrder)),
		Groups:      make([]models.GroupInstance, len(d.groups)),
		Definitions: make([]models.GroupDefinition, len(d.definitions)),
	}

	for _, id := range d.deviceOrder {
		snap.Devices = append(snap.Devices, d.devices[id])
	}

	copy(snap.Groups, d.groups)
	copy(snap.Definitions, d.definitions)

	return snap
}

// DeviceList returns the most recently reported flat device list. Devices
// absent from the last report stay cached (visible through Snapshot as known
// but not streaming) without appearing here.
func (d *Directory) DeviceList() []models.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Device, 0, len(d.lastReport))
	for _, id := range d.lastReport {
		out = append(out, d.devices[id])
	}

	return out
}

// flattenDeviceItems expands group objects into their nested device lists.
// An item counts as a group when it has a devices list alongside one of the
// group marker fields.
func flattenDeviceItems(items []map[string]any) []map[string]any {
	if len(items) == 0 {
		return items
	}

	first := items[0]
	_, hasDevices := first["devices"]

	isGroupList := hasDevices &&
		(hasAny(first, "isDeviceGroup", "is_device_group", "groupConfiguration", "group_configuration"))

	if !isGroupList {
		return items
	}

	var out []map[string]any

	for _, g := range items {
		out = append(out, listField(g, "devices")...)
	}

	return out
}

func hasAny(m map[string]any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := m[key]; ok {
			return true
		}
	}

	return false
}

func decodeDevice(item map[string]any, seen time.Time) (models.Device, bool) {
	axfID := stringField(item,
		"axfId", "axf_id", "deviceAxfId", "device_axf_id", "id", "deviceId", "device_id")
	if axfID == "" {
		return models.Device{}, false
	}

	name := stringField(item, "name", "deviceName", "display_name")
	if name == "" {
		name = "Unknown"
	}

	hint := stringField(item,
		"deviceTypeId", "device_type_id", "deviceType", "device_type", "type")

	return models.Device{
		AxfID:       axfID,
		DisplayName: name,
		DeviceType:  models.InferDeviceType(axfID, hint),
		LastSeen:    seen,
	}, true
}

func decodeGroup(item map[string]any) (models.GroupInstance, bool) {
	g := models.GroupInstance{
		GroupID: stringField(item, "axfId", "axf_id", "groupId", "group_id", "id"),
		Name:    stringField(item, "name"),
		ConfigurationLabel: stringField(item,
			"groupConfiguration", "group_configuration", "configuration",
			"configurationId", "configuration_id"),
		DefinitionID: stringField(item, "groupDefinitionId", "group_definition_id"),
	}

	for _, m := range listField(item, "mappings") {
		g.Mappings = append(g.Mappings, models.GroupMapping{
			PositionID:   stringField(m, "position", "positionId", "position_id"),
			MappingIndex: intField(m, "mappingIndex", "mapping_index"),
			DeviceID:     stringField(m, "deviceId", "device_id"),
			Rotation:     intField(m, "rotation"),
		})
	}

	for _, dev := range listField(item, "devices") {
		if d, ok := decodeDevice(dev, time.Time{}); ok {
			g.Devices = append(g.Devices, d)
		}
	}

	for _, m := range listField(item, "members") {
		if id := stringField(m, "deviceId", "device_id", "axfId", "id"); id != "" {
			g.Members = append(g.Members, id)
		}
	}

	if g.GroupID == "" && g.Name == "" && len(g.Mappings) == 0 && len(g.Devices) == 0 {
		return models.GroupInstance{}, false
	}

	return g, true
}

func decodeDefinition(item map[string]any) (models.GroupDefinition, bool) {
	def := models.GroupDefinition{
		DefinitionID: stringField(item, "axf_id", "axfId", "groupDefinitionId", "group_definition_id", "id"),
		Name: stringField(item,
			"name", "group_definition_name", "groupDefinitionName"),
	}

	positions := listField(item,
		"required_group_positions", "requiredGroupPositions", "required_devices", "requiredDevices")

	for _, p := range positions {
		pos := stringField(p, "position_id", "positionId")
		if pos == "" {
			continue
		}

		def.RequiredPositions = append(def.RequiredPositions, models.GroupPosition{
			PositionID:   pos,
			MappingIndex: intField(p, "mapping_index", "mappingIndex"),
			Rotation:     intField(p, "rotation"),
		})
	}

	if def.DefinitionID == "" && def.Name == "" {
		return models.GroupDefinition{}, false
	}

	return def, true
}
