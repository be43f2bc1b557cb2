package models

import "time"

// Connection is a snapshot of the event channel's state.
type Connection struct {
	Host               string    `json:"host"`
	TransportPort      int       `json:"transport_port"`
	HTTPPort           int       `json:"http_port"`
	Connected          bool      `json:"connected"`
	LastConnectTime    time.Time `json:"last_connect_time,omitempty"`
	LastDisconnectTime time.Time `json:"last_disconnect_time,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
}
