package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferDeviceType(t *testing.T) {
	tests := []struct {
		axfID string
		hint  string
		want  string
	}{
		{"07-AB-01", "", "07"},
		{"12ff00", "", "12"},
		{"99-zz-01", "08", "08"},
		{"99-zz-01", "gen4", ""},
		{"x", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, InferDeviceType(tt.axfID, tt.hint), "%q/%q", tt.axfID, tt.hint)
	}
}

func TestNormalizeDeviceID(t *testing.T) {
	assert.Equal(t, "07ab01", NormalizeDeviceID("07-AB-01"))
	assert.Equal(t, "07ab01", NormalizeDeviceID("  07ab01 "))
	assert.Equal(t, "", NormalizeDeviceID(""))
}

func TestContainsDeviceAcrossRelations(t *testing.T) {
	g := GroupInstance{
		GroupID:  "grp-1",
		Mappings: []GroupMapping{{PositionID: "Launch Zone", DeviceID: "07-AB-01"}},
		Devices:  []Device{{AxfID: "08CD02"}},
		Members:  []string{"10-ef-03"},
	}

	for _, id := range []string{"07ab01", "08cd02", "10ef03"} {
		assert.True(t, g.ContainsDevice(id), id)
	}

	assert.False(t, g.ContainsDevice("07ab02"))
	assert.False(t, g.ContainsDevice(""))
}

func TestPositionMap(t *testing.T) {
	g := GroupInstance{
		Mappings: []GroupMapping{
			{PositionID: "Launch Zone", DeviceID: "07-AB-01"},
			{PositionID: "", DeviceID: "ignored"},
			{PositionID: "Upper Landing Zone", DeviceID: ""},
		},
	}

	assert.Equal(t, map[string]string{"Launch Zone": "07ab01"}, g.PositionMap())
}
