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

package hardware

import (
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

// Subscription surface consumed by the GUI/business layer. Callbacks run on
// the transport dispatch goroutine (or the auto-connect goroutine for status
// transitions) and must not block.

// OnConnectionStatus registers for human-readable connection state changes.
func (s *Service) OnConnectionStatus(cb func(status string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusSubs = append(s.statusSubs, cb)
}

// OnTelemetry registers for raw decoded telemetry payloads.
func (s *Service) OnTelemetry(cb func(data any)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.telemetrySubs = append(s.telemetrySubs, cb)
}

// OnDeviceList registers for normalized device list updates.
func (s *Service) OnDeviceList(cb func(devices []models.Device)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deviceSubs = append(s.deviceSubs, cb)
}

// OnActiveDevices registers for active-set transitions.
func (s *Service) OnActiveDevices(cb func(ids []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeSubs = append(s.activeSubs, cb)
}

// OnSocketError registers for backend error events.
func (s *Service) OnSocketError(cb func(msg string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorSubs = append(s.errorSubs, cb)
}

func (s *Service) notifyStatus(status string) {
	s.mu.Lock()
	subs := append(([]func(string))(nil), s.statusSubs...)
	s.mu.Unlock()

	for _, cb := range subs {
		cb(status)
	}
}

func (s *Service) notifyTelemetry(data any) {
	s.mu.Lock()
	subs := append(([]func(any))(nil), s.telemetrySubs...)
	s.mu.Unlock()

	for _, cb := range subs {
		cb(data)
	}
}

func (s *Service) notifyDevices(devices []models.Device) {
	s.mu.Lock()
	subs := append(([]func([]models.Device))(nil), s.deviceSubs...)
	s.mu.Unlock()

	for _, cb := range subs {
		cb(devices)
	}
}

func (s *Service) notifyActive(ids []string) {
	s.mu.Lock()
	subs := append(([]func([]string))(nil), s.activeSubs...)
	s.mu.Unlock()

	for _, cb := range subs {
		cb(ids)
	}
}

func (s *Service) notifyError(msg string) {
	if msg == "" {
		return
	}

	s.mu.Lock()
	subs := append(([]func(string))(nil), s.errorSubs...)
	s.mu.Unlock()

	for _, cb := range subs {
		cb(msg)
	}
}
