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

// Package hardware is the orchestrating service over the event channel: it
// owns the transport client, keeps the directory and liveness tracker fed,
// runs auto-connect with port discovery, and exposes the notification
// surface the GUI/business layer consumes.
package hardware

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/calebkmiecik/FluxDeluxe/pkg/config"
	"github.com/calebkmiecik/FluxDeluxe/pkg/directory"
	"github.com/calebkmiecik/FluxDeluxe/pkg/discovery"
	"github.com/calebkmiecik/FluxDeluxe/pkg/formation"
	"github.com/calebkmiecik/FluxDeluxe/pkg/liveness"
	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
	"github.com/calebkmiecik/FluxDeluxe/pkg/transport"
)

const (
	connectWait      = 5 * time.Second
	connectPoll      = 200 * time.Millisecond
	autoRetryDelay   = 5 * time.Second
	expirePollPeriod = 250 * time.Millisecond
)

// Mound group logical positions.
const (
	PositionLaunch       = "Launch Zone"
	PositionUpperLanding = "Upper Landing Zone"
	PositionLowerLanding = "Lower Landing Zone"
)

// Service wires transport, directory, liveness and formation together.
type Service struct {
	cfg    config.Config
	log    zerolog.Logger
	client *transport.Client
	dir    *directory.Directory
	track  *liveness.Tracker
	proto  *formation.Protocol
	prober *discovery.Prober

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	statusSubs    []func(string)
	telemetrySubs []func(any)
	deviceSubs    []func([]models.Device)
	activeSubs    []func([]string)
	errorSubs     []func(string)

	autoMu      sync.Mutex
	autoRunning bool
}

// New builds a Service. Event subscriptions are wired once; Connect may be
// called repeatedly.
func New(cfg config.Config, log logger.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:    cfg,
		log:    log.WithComponent("hardware"),
		client: transport.NewClient(log),
		dir:    directory.New(log),
		track:  liveness.NewTracker(time.Duration(cfg.DecayWindow), log),
		prober: discovery.NewProber(log),
		ctx:    ctx,
		cancel: cancel,
	}

	s.proto = formation.New(s.client, s.dir, s.fetchDiscovery, log)
	s.wire()

	s.wg.Add(1)

	go s.expireLoop()

	return s
}

func (s *Service) wire() {
	c := s.client

	c.On(models.EventConnect, func(any) { s.onConnect() })
	c.On(models.EventDisconnect, func(any) { s.onDisconnect() })
	c.On(models.EventError, func(data any) { s.notifyError(asString(data)) })

	// simpleJsonData is already msgpack-decoded by the transport, so both
	// telemetry events take the same path.
	c.On(models.EventJSONData, s.onTelemetry)
	c.On(models.EventSimpleJSONData, s.onTelemetry)

	c.On(models.EventGroupDefinitions, func(data any) { s.dir.OnGroupDefinitions(data) })
	c.On(models.EventGroupDefinitionsPush, func(data any) { s.dir.OnGroupDefinitions(data) })

	// Connected groups double as the device list: DynamoPy-style backends
	// report devices nested inside groups and emit no flat device list.
	for _, event := range []string{
		models.EventConnectedGroups,
		models.EventGroupsLegacy,
		models.EventConnectedGroupList,
	} {
		c.On(event, func(data any) {
			s.dir.OnGroupList(data)
			s.notifyDevices(s.dir.OnDeviceList(data))
		})
	}

	c.On(models.EventConnectedDeviceList, func(data any) {
		s.notifyDevices(s.dir.OnDeviceList(data))
	})

	c.On(models.EventConnStatusUpdate, s.onConnStatusUpdate)

	c.On(models.EventStartDataReception, func(data any) {
		s.log.Debug().Interface("status", data).Msg("Data reception status")
	})
	c.On(models.EventDeviceSettings, func(data any) {
		s.log.Debug().Interface("settings", data).Msg("Device settings received")
	})
	c.On(models.EventDeviceTypes, func(data any) {
		s.log.Debug().Interface("types", data).Msg("Device types received")
	})
	c.On(models.EventDynamoConfig, func(data any) {
		s.log.Debug().Interface("config", data).Msg("Backend config received")
	})
	c.On(models.EventReinitializeGroups, func(data any) {
		s.log.Debug().Interface("status", data).Msg("Reinitialize device groups status")
	})
	c.On(models.EventReinitializeConnected, func(data any) {
		s.log.Debug().Interface("status", data).Msg("Reinitialize connected devices status")
	})
}

// Connect points the transport at host:port and starts its reconnect loop.
func (s *Service) Connect(host string, port int) {
	s.log.Info().Str("host", host).Int("port", port).Msg("Connecting")
	s.client.Connect(host, port)
	s.notifyStatus("Connecting...")
}

// Disconnect stops the transport and clears connection-derived state so
// consumers revert to the empty view.
func (s *Service) Disconnect() {
	s.client.Disconnect()
	s.clearLiveState()
	s.notifyStatus("Disconnected")
}

// Close shuts the service down entirely.
func (s *Service) Close() {
	s.cancel()
	s.client.Close()
	s.wg.Wait()
}

func (s *Service) onConnect() {
	s.notifyStatus("Connected")

	// Backends emit no telemetry until a client starts reception.
	s.client.Emit(models.CmdStartDataReception, map[string]any{})
	s.client.Emit(models.CmdGetDynamoConfig, nil)
	s.fetchDiscovery()
}

func (s *Service) onDisconnect() {
	// Channel down means nothing is streaming; force the active set empty
	// rather than waiting out the decay window.
	s.clearLiveState()
	s.notifyStatus("Disconnected")
}

func (s *Service) clearLiveState() {
	if _, changed := s.track.Clear(); changed {
		s.notifyActive([]string{})
	}

	s.notifyDevices([]models.Device{})
}

// fetchDiscovery pulls the full directory: devices, types, definitions and
// connected groups, on both current and legacy event names.
func (s *Service) fetchDiscovery() {
	c := s.client
	c.Emit(models.CmdGetDeviceSettings, map[string]any{})
	c.Emit(models.CmdGetDeviceTypes, map[string]any{})
	c.Emit(models.CmdGetGroupDefinitions, map[string]any{})
	c.Emit(models.CmdGetConnectedDevices, nil)
	c.Emit(models.CmdGetConnectedGroups, nil)
	c.Emit(models.CmdGetGroups, nil)
}

func (s *Service) onTelemetry(data any) {
	s.notifyTelemetry(data)

	if active, changed := s.track.Observe(data); changed {
		s.notifyActive(active)
	}
}

// onConnStatusUpdate consumes realtime per-group connect/disconnect updates:
// {groupID: {isConnected, devices: {deviceID: bool}}}. An all-disconnected
// or unparseable update counts as zero connected and clears the active set
// immediately.
func (s *Service) onConnStatusUpdate(payload any) {
	connected := 0

	if groups, ok := payload.(map[string]any); ok {
		for _, g := range groups {
			grp, ok := g.(map[string]any)
			if !ok {
				continue
			}

			devs, ok := grp["devices"].(map[string]any)
			if !ok {
				continue
			}

			for _, on := range devs {
				if b, ok := on.(bool); ok && b {
					connected++
				}
			}
		}
	}

	if connected == 0 {
		s.clearLiveState()
	}

	// Connection state changed; pull an authoritative list.
	s.client.Emit(models.CmdGetConnectedDevices, nil)
}

// expireLoop ages devices out of the active set while the stream is quiet.
// Expiry runs through the dispatch queue so tracker notifications stay
// ordered with packet-driven ones.
func (s *Service) expireLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(expirePollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.client.Post(func() {
				if active, changed := s.track.Expire(); changed {
					s.notifyActive(active)
				}
			})
		case <-s.ctx.Done():
			return
		}
	}
}

// AutoConnect keeps trying to reach the backend until connected or the
// service closes: port discovery first, then the configured fallback ports.
func (s *Service) AutoConnect(host string, httpPort int) {
	s.autoMu.Lock()
	if s.autoRunning {
		s.autoMu.Unlock()
		return
	}

	s.autoRunning = true
	s.autoMu.Unlock()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.autoMu.Lock()
			s.autoRunning = false
			s.autoMu.Unlock()
		}()

		s.autoConnectLoop(host, httpPort)
	}()
}

func (s *Service) autoConnectLoop(host string, httpPort int) {
	for s.ctx.Err() == nil {
		if s.client.Connected() {
			s.notifyStatus("Connected")
			return
		}

		s.notifyStatus("Auto-connecting...")

		if port, ok := s.prober.DiscoverPort(s.ctx, host, httpPort); ok {
			s.notifyStatus("Found port, connecting...")
			s.Connect(host, port)

			if s.waitConnected() {
				return
			}
		}

		for _, port := range s.cfg.FallbackPorts {
			if s.client.Connected() {
				return
			}

			s.notifyStatus("Trying fallback port...")
			s.Connect(host, port)

			if s.waitConnected() {
				return
			}
		}

		if s.client.Connected() {
			return
		}

		s.notifyStatus("Retrying in 5s...")
		s.client.Disconnect()

		if !sleepCtx(s.ctx, autoRetryDelay) {
			return
		}
	}
}

func (s *Service) waitConnected() bool {
	deadline := time.Now().Add(connectWait)

	for time.Now().Before(deadline) {
		if s.client.Connected() {
			return true
		}

		if !sleepCtx(s.ctx, connectPoll) {
			return false
		}
	}

	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	if v == nil {
		return ""
	}

	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(b)
}
