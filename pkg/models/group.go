package models

// GroupPosition is one required slot in a group definition.
type GroupPosition struct {
	PositionID   string `json:"position_id"`
	MappingIndex int    `json:"mapping_index"`
	Rotation     int    `json:"rotation"`
}

// GroupDefinition is a backend-supplied group schema (e.g. "PitchingMound").
// Read-only; used only to build creation payloads.
type GroupDefinition struct {
	DefinitionID      string          `json:"definition_id"`
	Name              string          `json:"name"`
	RequiredPositions []GroupPosition `json:"required_positions"`
}

// GroupMapping assigns a physical device to a logical position inside an
// instantiated group.
type GroupMapping struct {
	PositionID   string `json:"position_id"`
	MappingIndex int    `json:"mapping_index"`
	DeviceID     string `json:"device_id"`
	Rotation     int    `json:"rotation"`
}

// GroupInstance is an already-instantiated composite (virtual) device.
type GroupInstance struct {
	GroupID            string         `json:"group_id"`
	Name               string         `json:"name"`
	ConfigurationLabel string         `json:"configuration_label"`
	DefinitionID       string         `json:"definition_id"`
	Mappings           []GroupMapping `json:"mappings"`
	Devices            []Device       `json:"devices,omitempty"`
	Members            []string       `json:"members,omitempty"`
}

// PositionMap returns the group's position→normalized-device-id relation,
// built from whichever of mappings, devices or members is populated.
func (g *GroupInstance) PositionMap() map[string]string {
	out := make(map[string]string, len(g.Mappings))
	for _, m := range g.Mappings {
		if m.PositionID != "" && m.DeviceID != "" {
			out[m.PositionID] = NormalizeDeviceID(m.DeviceID)
		}
	}

	return out
}

// ContainsDevice reports whether the group references the device under any
// of its devices, mappings or members relations. The id must already be
// normalized by the caller.
func (g *GroupInstance) ContainsDevice(normalizedID string) bool {
	if normalizedID == "" {
		return false
	}

	for i := range g.Devices {
		if NormalizeDeviceID(g.Devices[i].AxfID) == normalizedID {
			return true
		}
	}

	for i := range g.Mappings {
		if NormalizeDeviceID(g.Mappings[i].DeviceID) == normalizedID {
			return true
		}
	}

	for _, m := range g.Members {
		if NormalizeDeviceID(m) == normalizedID {
			return true
		}
	}

	return false
}
