package models

import (
	"strings"
	"time"
)

// Device represents one physical force plate reported by the backend.
type Device struct {
	AxfID       string    `json:"axf_id"`
	DisplayName string    `json:"display_name"`
	DeviceType  string    `json:"device_type"`
	LastSeen    time.Time `json:"last_seen"`
}

// Known plate hardware generations, matching the 2-character axf id prefix.
var deviceTypes = map[string]struct{}{
	"06": {}, "07": {}, "08": {}, "10": {}, "11": {}, "12": {},
}

// InferDeviceType derives the canonical device type from an axf id prefix.
// Backends vary on whether they send an explicit type; the hint wins only
// when it is itself canonical. Returns "" when nothing matches.
func InferDeviceType(axfID, hint string) string {
	s := strings.TrimSpace(axfID)
	if len(s) >= 2 {
		if _, ok := deviceTypes[s[:2]]; ok {
			return s[:2]
		}
	}

	h := strings.TrimSpace(hint)
	if _, ok := deviceTypes[h]; ok {
		return h
	}

	return ""
}

// NormalizeDeviceID canonicalizes a device id for comparison: lower-cased,
// hyphens stripped. Backend generations disagree on both.
func NormalizeDeviceID(id string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(id)), "-", "")
}
