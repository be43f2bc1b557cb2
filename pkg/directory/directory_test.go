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

package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
)

func device(id, name string) map[string]any {
	return map[string]any{"axfId": id, "name": name}
}

func TestEnvelopeShapesNormalizeIdentically(t *testing.T) {
	flat := []any{device("07-ab01", "Plate A"), device("07-ab02", "Plate B")}

	tests := []struct {
		name    string
		payload any
		shape   EnvelopeShape
	}{
		{"flat list", flat, ShapeFlat},
		{"data wrapped", map[string]any{"data": flat}, ShapeDataWrapped},
		{"response wrapped", map[string]any{"status": "success", "response": flat}, ShapeResponseWrapped},
		{"groups wrapped", map[string]any{"groups": flat}, ShapeGroupsWrapped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, shape := decodeEnvelope(tt.payload)
			assert.Equal(t, tt.shape, shape)
			require.Len(t, items, 2)
			assert.Equal(t, "07-ab01", items[0]["axfId"])
		})
	}
}

func TestEnvelopeUnrecognizedDecodesEmpty(t *testing.T) {
	for _, payload := range []any{nil, "nope", 42, map[string]any{"status": "success"}} {
		items, shape := decodeEnvelope(payload)
		assert.Equal(t, ShapeEmpty, shape)
		assert.Nil(t, items)
	}
}

func TestOnDeviceListFlat(t *testing.T) {
	d := New(logger.NewTestLogger())

	devices := d.OnDeviceList([]any{
		map[string]any{"axfId": "07-AB01", "name": "Launch"},
		map[string]any{"axf_id": "08cd02", "deviceName": "Wide"},
		map[string]any{"name": "no id, dropped"},
	})

	require.Len(t, devices, 2)
	assert.Equal(t, "07-AB01", devices[0].AxfID)
	assert.Equal(t, "Launch", devices[0].DisplayName)
	assert.Equal(t, "07", devices[0].DeviceType)
	assert.Equal(t, "08", devices[1].DeviceType)
	assert.False(t, devices[0].LastSeen.IsZero())
}

func TestOnDeviceListFlattensGroupItems(t *testing.T) {
	d := New(logger.NewTestLogger())

	devices := d.OnDeviceList([]any{
		map[string]any{
			"axfId":         "g1",
			"isDeviceGroup": true,
			"devices":       []any{device("07-ab01", "A"), device("07-ab02", "B")},
		},
		map[string]any{
			"axfId":              "g2",
			"groupConfiguration": "mound_v2",
			"devices":            []any{device("06-ef03", "C")},
		},
	})

	require.Len(t, devices, 3)
	assert.Equal(t, []string{"07-ab01", "07-ab02", "06-ef03"},
		[]string{devices[0].AxfID, devices[1].AxfID, devices[2].AxfID})
}

func TestSnapshotKeepsKnownDevicesAcrossReports(t *testing.T) {
	d := New(logger.NewTestLogger())

	d.OnDeviceList([]any{device("07-ab01", "A"), device("07-ab02", "B")})
	d.OnDeviceList([]any{device("07-ab02", "B")})

	// The latest report drives DeviceList, but a device never vanishes from
	// the snapshot once discovered.
	assert.Len(t, d.DeviceList(), 1)

	snap := d.Snapshot()
	require.Len(t, snap.Devices, 2)
	assert.Equal(t, "07-ab01", snap.Devices[0].AxfID)
	assert.Equal(t, "07-ab02", snap.Devices[1].AxfID)
}

func TestOnDeviceListUnparseablePayloadReportsEmpty(t *testing.T) {
	d := New(logger.NewTestLogger())

	d.OnDeviceList([]any{device("07-ab01", "A")})

	devices := d.OnDeviceList(map[string]any{"status": "success"})
	assert.Empty(t, devices)
	assert.NotNil(t, devices)
	assert.Empty(t, d.DeviceList())

	// The device stays known even though the report went empty.
	snap := d.Snapshot()
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "07-ab01", snap.Devices[0].AxfID)
}

func TestOnGroupListAndResolve(t *testing.T) {
	d := New(logger.NewTestLogger())

	groups := d.OnGroupList([]any{
		map[string]any{
			"axfId": "grp-1",
			"name":  "Mound",
			"mappings": []any{
				map[string]any{"position": "Launch Zone", "deviceId": "07-AB-01", "rotation": -90},
			},
		},
		map[string]any{
			"groupId": "grp-2",
			"devices": []any{device("08cd02", "Wide")},
		},
		map[string]any{
			"id":      "grp-3",
			"members": []any{map[string]any{"deviceId": "10ef03"}},
		},
	})
	require.Len(t, groups, 3)

	// Resolution is case and hyphen insensitive, across all three relations.
	for _, tc := range []struct{ dev, group string }{
		{"07ab01", "grp-1"},
		{"07-AB-01", "grp-1"},
		{"08-CD-02", "grp-2"},
		{"10EF03", "grp-3"},
	} {
		id, ok := d.ResolveGroupForDevice(tc.dev)
		require.True(t, ok, tc.dev)
		assert.Equal(t, tc.group, id)
	}

	_, ok := d.ResolveGroupForDevice("99xx99")
	assert.False(t, ok)

	// An empty follow-up report clears the group cache.
	d.OnGroupList(map[string]any{"status": "success"})
	_, ok = d.ResolveGroupForDevice("07ab01")
	assert.False(t, ok)
}

func TestOnGroupDefinitions(t *testing.T) {
	d := New(logger.NewTestLogger())

	defs := d.OnGroupDefinitions(map[string]any{"response": []any{
		map[string]any{
			"axf_id": "PitchingMound",
			"name":   "Pitching Mound",
			"required_group_positions": []any{
				map[string]any{"position_id": "Launch Zone", "mapping_index": 0, "rotation": -90},
				map[string]any{"position_id": "Upper Landing Zone", "mapping_index": 1},
				map[string]any{"position_id": "Lower Landing Zone", "mapping_index": 2},
			},
		},
		map[string]any{"noise": true},
	}})

	require.Len(t, defs, 1)
	assert.Equal(t, "PitchingMound", defs[0].DefinitionID)
	require.Len(t, defs[0].RequiredPositions, 3)
	assert.Equal(t, -90, defs[0].RequiredPositions[0].Rotation)

	snap := d.Snapshot()
	assert.Len(t, snap.Definitions, 1)
}
