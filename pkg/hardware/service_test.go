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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebkmiecik/FluxDeluxe/pkg/config"
	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

const waitFor = 3 * time.Second

type wireFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// fakeBackend is a scripted Dynamo endpoint: it records every command the
// service emits and lets tests push events back down the channel.
type fakeBackend struct {
	t      *testing.T
	host   string
	port   int
	events chan wireFrame

	mu   sync.Mutex
	conn *websocket.Conn
}

func startBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{t: t, events: make(chan wireFrame, 64)}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var f wireFrame
			if err := json.Unmarshal(msg, &f); err != nil {
				continue
			}

			b.events <- f
		}
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	b.host = u.Hostname()
	b.port, err = strconv.Atoi(u.Port())
	require.NoError(t, err)

	return b
}

// push sends an event frame to the connected service.
func (b *fakeBackend) push(event string, data any) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	require.NotNil(b.t, conn, "no client connected")

	msg, err := json.Marshal(wireFrame{Event: event, Data: data})
	require.NoError(b.t, err)
	require.NoError(b.t, conn.WriteMessage(websocket.TextMessage, msg))
}

// await drains received commands until event shows up.
func (b *fakeBackend) await(event string) wireFrame {
	deadline := time.After(waitFor)

	for {
		select {
		case f := <-b.events:
			if f.Event == event {
				return f
			}
		case <-deadline:
			b.t.Fatalf("backend never received %s", event)
			return wireFrame{}
		}
	}
}

func startService(t *testing.T) (*Service, *fakeBackend) {
	t.Helper()

	b := startBackend(t)

	cfg := config.Default()
	cfg.Host = b.host
	cfg.SocketPort = b.port

	s := New(cfg, logger.NewTestLogger())
	t.Cleanup(s.Close)

	return s, b
}

func TestConnectHandshake(t *testing.T) {
	s, b := startService(t)

	statuses := make(chan string, 16)
	s.OnConnectionStatus(func(status string) { statuses <- status })

	s.Connect(b.host, b.port)

	// Reception must be started before anything streams, and the full
	// directory pull follows.
	b.await(models.CmdStartDataReception)
	b.await(models.CmdGetDynamoConfig)
	b.await(models.CmdGetGroupDefinitions)
	b.await(models.CmdGetConnectedGroups)
	b.await(models.CmdGetGroups)

	require.Eventually(t, func() bool {
		for {
			select {
			case st := <-statuses:
				if st == "Connected" {
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, 10*time.Millisecond)

	assert.True(t, s.Status().Connected)
}

func TestGroupListFeedsDeviceNotifications(t *testing.T) {
	s, b := startService(t)

	lists := make(chan []models.Device, 4)
	s.OnDeviceList(func(devices []models.Device) {
		if len(devices) > 0 {
			lists <- devices
		}
	})

	s.Connect(b.host, b.port)
	b.await(models.CmdStartDataReception)

	b.push(models.EventConnectedGroups, map[string]any{
		"response": []any{
			map[string]any{
				"axfId":              "grp-1",
				"name":               "Mound 1",
				"groupConfiguration": "Pitching Mound",
				"devices": []any{
					map[string]any{"axfId": "07-AB-01", "name": "Launch"},
					map[string]any{"axfId": "07-AB-02", "name": "Upper"},
				},
			},
		},
	})

	select {
	case devices := <-lists:
		require.Len(t, devices, 2)
		assert.Equal(t, "07-AB-01", devices[0].AxfID)
		assert.Equal(t, "07", devices[0].DeviceType)
	case <-time.After(waitFor):
		t.Fatal("device list notification never arrived")
	}

	groupID, ok := s.ResolveGroupForDevice("07ab01")
	require.True(t, ok)
	assert.Equal(t, "grp-1", groupID)
}

func TestTelemetryDrivesActiveSet(t *testing.T) {
	s, b := startService(t)

	active := make(chan []string, 8)
	s.OnActiveDevices(func(ids []string) { active <- ids })

	s.Connect(b.host, b.port)
	b.await(models.CmdStartDataReception)
	b.await(models.CmdGetConnectedDevices)

	b.push(models.EventJSONData, map[string]any{"deviceId": "07-ab01", "fz": 801.2})

	select {
	case ids := <-active:
		assert.Equal(t, []string{"07-ab01"}, ids)
	case <-time.After(waitFor):
		t.Fatal("active set never updated")
	}

	// An all-disconnected realtime update clears the set immediately and
	// triggers an authoritative device list pull.
	b.push(models.EventConnStatusUpdate, map[string]any{
		"grp-1": map[string]any{
			"isConnected": false,
			"devices":     map[string]any{"07-ab01": false},
		},
	})

	select {
	case ids := <-active:
		assert.Empty(t, ids)
	case <-time.After(waitFor):
		t.Fatal("active set never cleared")
	}

	b.await(models.CmdGetConnectedDevices)
}

func TestUnparseableConnStatusUpdateClearsState(t *testing.T) {
	s, b := startService(t)

	active := make(chan []string, 8)
	s.OnActiveDevices(func(ids []string) { active <- ids })

	s.Connect(b.host, b.port)
	b.await(models.CmdStartDataReception)

	b.push(models.EventJSONData, map[string]any{"deviceId": "07-ab01"})

	select {
	case ids := <-active:
		require.Equal(t, []string{"07-ab01"}, ids)
	case <-time.After(waitFor):
		t.Fatal("active set never updated")
	}

	// The handshake already pulled the device list once.
	b.await(models.CmdGetConnectedDevices)

	// A payload that does not decode to groups counts as zero connected.
	b.push(models.EventConnStatusUpdate, "garbled")

	select {
	case ids := <-active:
		assert.Empty(t, ids)
	case <-time.After(waitFor):
		t.Fatal("active set never cleared")
	}

	// And the update triggers a fresh authoritative pull.
	b.await(models.CmdGetConnectedDevices)
}

func TestTareCommandOrder(t *testing.T) {
	s, b := startService(t)

	s.Connect(b.host, b.port)
	b.await(models.CmdStartDataReception)

	s.Tare()

	ref := b.await(models.CmdSetReferenceTime)
	assert.Equal(t, float64(-1), ref.Data)
	b.await(models.CmdTareAll)
}

func TestStartCapturePayload(t *testing.T) {
	s, b := startService(t)

	s.Connect(b.host, b.port)
	b.await(models.CmdStartDataReception)

	s.StartCapture(CaptureRequest{
		GroupID:     "grp-1",
		AthleteID:   "ath-9",
		CaptureName: "warmup",
	})

	f := b.await(models.CmdStartCapture)

	payload, ok := f.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "simple", payload["captureConfiguration"])
	assert.Equal(t, "grp-1", payload["groupId"])
	assert.Equal(t, "ath-9", payload["athleteId"])
	assert.Equal(t, "warmup", payload["captureName"])
}

func TestModelCommandPayloads(t *testing.T) {
	s, b := startService(t)

	s.Connect(b.host, b.port)
	b.await(models.CmdStartDataReception)

	s.SetModelBypass(true)
	bypass := b.await(models.CmdSetModelBypass)
	assert.Equal(t, true, bypass.Data)

	s.RequestModelMetadata("07-ab01")
	meta := b.await(models.CmdGetModelMetadata)
	assert.Equal(t, map[string]any{"deviceId": "07-ab01"}, meta.Data)

	s.PackageModel(ModelPackage{
		ForceModelDir:   "/models/force",
		MomentsModelDir: "/models/moments",
		OutputDir:       "/out",
	})
	pkg := b.await(models.CmdPackageModel)
	assert.Equal(t, map[string]any{
		"forceModelDir":   "/models/force",
		"momentsModelDir": "/models/moments",
		"outputDir":       "/out",
	}, pkg.Data)

	s.ActivateModel("07-ab01", "m-1")
	act := b.await(models.CmdActivateModel)
	assert.Equal(t, map[string]any{"deviceId": "07-ab01", "modelId": "m-1"}, act.Data)

	s.DeactivateModel("07-ab01", "m-1")
	b.await(models.CmdDeactivateModel)

	s.LoadModel("/models/pkg.axf")
	load := b.await(models.CmdLoadModel)
	assert.Equal(t, map[string]any{"modelDir": "/models/pkg.axf"}, load.Data)
}

func TestFindOrCreateMoundGroupAgainstBackend(t *testing.T) {
	s, b := startService(t)

	s.Connect(b.host, b.port)
	b.await(models.CmdStartDataReception)

	outcomes := make(chan models.FormationOutcome, 1)

	s.FindOrCreateMoundGroup("07-AB-01", "07-AB-02", "07-AB-03", "Mound 1",
		func(o models.FormationOutcome) { outcomes <- o })

	create := b.await(models.CmdCreateTemporaryGroup)

	payload, ok := create.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PitchingMound", payload["group_definition_id"])

	b.push(models.EventCreateDeviceGroup, map[string]any{
		"status": "success",
		"data":   map[string]any{"group_id": "grp-new"},
	})

	select {
	case o := <-outcomes:
		assert.Equal(t, models.FormationCreated, o.Status)
		assert.Equal(t, "grp-new", o.GroupID)
	case <-time.After(waitFor):
		t.Fatal("formation outcome never delivered")
	}
}

func TestAsString(t *testing.T) {
	assert.Equal(t, "boom", asString("boom"))
	assert.Equal(t, "", asString(nil))
	assert.Equal(t, `{"code":7}`, asString(map[string]any{"code": 7}))
}
