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
	"fmt"

	"github.com/calebkmiecik/FluxDeluxe/pkg/formation"
	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

// CaptureRequest describes one capture session start.
type CaptureRequest struct {
	CaptureConfiguration string
	GroupID              string
	AthleteID            string
	CaptureName          string
	Tags                 []string
}

// StartCapture begins a capture session on the backend.
func (s *Service) StartCapture(req CaptureRequest) {
	cfg := req.CaptureConfiguration
	if cfg == "" {
		cfg = "simple"
	}

	payload := map[string]any{
		"captureConfiguration": cfg,
		"captureType":          cfg,
		"groupId":              req.GroupID,
		"athleteId":            req.AthleteID,
	}

	if req.CaptureName != "" {
		payload["captureName"] = req.CaptureName
	}

	if len(req.Tags) > 0 {
		payload["tags"] = req.Tags
	}

	s.client.Emit(models.CmdStartCapture, payload)
}

// StopCapture ends the capture session for the group.
func (s *Service) StopCapture(groupID string) {
	s.client.Emit(models.CmdStopCapture, map[string]any{"groupId": groupID})
}

// StopDataReception halts telemetry emission from the backend.
func (s *Service) StopDataReception() {
	s.client.Emit(models.CmdStopDataReception, nil)
}

// Tare zeroes all connected plates.
func (s *Service) Tare() {
	s.client.Emit(models.CmdSetReferenceTime, -1)
	s.client.Emit(models.CmdTareAll, nil)
}

// UpdateDynamoConfig sets one backend configuration key.
func (s *Service) UpdateDynamoConfig(key string, value any) {
	s.client.Emit(models.CmdUpdateDynamoConfig, map[string]any{"key": key, "value": value})
}

// ConfigureTemperatureCorrection pushes the temperature correction settings.
func (s *Service) ConfigureTemperatureCorrection(slopes map[string]float64, enabled bool, roomTempF float64) {
	s.UpdateDynamoConfig("temperatureCorrectionSlopes", slopes)
	s.client.Emit(models.CmdSetDeviceConfig, map[string]any{"roomTemperatureF": roomTempF})
	s.UpdateDynamoConfig("applyTemperatureCorrection", enabled)
}

// BackendSettings is the subset of backend configuration the client manages.
// Zero values are not sent.
type BackendSettings struct {
	CaptureDetail        string
	EmissionRate         int
	MovingAverageWindow  int
	MovingAverageType    string
	BypassModels         *bool
	UseTempCorrection    *bool
	RoomTemperatureF     *float64
	TempCorrectionByType map[string]map[string]float64 // device type -> {x,y,z}
}

// ConfigureBackend applies the settings as individual updateDynamoConfig
// commands, converting to the camelCase keys the backend expects.
func (s *Service) ConfigureBackend(settings BackendSettings) {
	if settings.CaptureDetail != "" {
		s.UpdateDynamoConfig("captureDetail", settings.CaptureDetail)
	}

	if settings.EmissionRate > 0 {
		s.UpdateDynamoConfig("emissionRate", settings.EmissionRate)
	}

	if settings.MovingAverageWindow > 0 {
		s.UpdateDynamoConfig("movingAverageWindow", settings.MovingAverageWindow)
	}

	if settings.MovingAverageType != "" {
		s.UpdateDynamoConfig("movingAverageType", settings.MovingAverageType)
	}

	if settings.BypassModels != nil {
		s.UpdateDynamoConfig("bypassModels", *settings.BypassModels)
	}

	if settings.UseTempCorrection != nil {
		s.UpdateDynamoConfig("useTemperatureCorrection", *settings.UseTempCorrection)
	}

	if settings.RoomTemperatureF != nil {
		s.UpdateDynamoConfig("roomTemperatureF", *settings.RoomTemperatureF)
	}

	for deviceType, slopes := range settings.TempCorrectionByType {
		s.UpdateDynamoConfig(fmt.Sprintf("temperatureCorrection%s", deviceType), slopes)
	}
}

// ModelPackage names the model directories bundled by PackageModel.
type ModelPackage struct {
	ForceModelDir   string
	MomentsModelDir string
	OutputDir       string
}

// SetModelBypass toggles the backend's force/moments model processing.
func (s *Service) SetModelBypass(enabled bool) {
	s.client.Emit(models.CmdSetModelBypass, enabled)
}

// RequestModelMetadata asks for the model metadata of one device.
func (s *Service) RequestModelMetadata(deviceID string) {
	s.client.Emit(models.CmdGetModelMetadata, map[string]any{"deviceId": deviceID})
}

// PackageModel bundles the model directories into a distributable package.
func (s *Service) PackageModel(pkg ModelPackage) {
	s.client.Emit(models.CmdPackageModel, map[string]any{
		"forceModelDir":   pkg.ForceModelDir,
		"momentsModelDir": pkg.MomentsModelDir,
		"outputDir":       pkg.OutputDir,
	})
}

// ActivateModel activates a model for the device.
func (s *Service) ActivateModel(deviceID, modelID string) {
	s.client.Emit(models.CmdActivateModel, map[string]any{"deviceId": deviceID, "modelId": modelID})
}

// DeactivateModel deactivates a model for the device.
func (s *Service) DeactivateModel(deviceID, modelID string) {
	s.client.Emit(models.CmdDeactivateModel, map[string]any{"deviceId": deviceID, "modelId": modelID})
}

// LoadModel loads a model package file into the backend's stores.
func (s *Service) LoadModel(modelDir string) {
	s.client.Emit(models.CmdLoadModel, map[string]any{"modelDir": modelDir})
}

// FindOrCreateMoundGroup resolves or creates the three-plate pitching mound
// virtual group. The outcome callback fires exactly once.
func (s *Service) FindOrCreateMoundGroup(launchID, upperID, lowerID, groupName string, onResult func(models.FormationOutcome)) {
	if groupName == "" {
		groupName = "Pitching Mound"
	}

	s.proto.FindOrCreate(formation.Request{
		Mapping: map[string]string{
			PositionLaunch:       launchID,
			PositionUpperLanding: upperID,
			PositionLowerLanding: lowerID,
		},
		DefinitionID:    formation.DefaultDefinitionID,
		GroupName:       groupName,
		CreateIfMissing: true,
		OnResult:        onResult,
	})
}

// ResolveGroupForDevice returns the group id that includes the device.
func (s *Service) ResolveGroupForDevice(deviceID string) (string, bool) {
	return s.dir.ResolveGroupForDevice(deviceID)
}

// Snapshot returns an immutable copy of the cached directory state.
func (s *Service) Snapshot() models.DirectorySnapshot {
	return s.dir.Snapshot()
}

// Status returns a copy of the transport connection state.
func (s *Service) Status() models.Connection {
	return s.client.Status()
}

// ActiveDevices returns the current active (streaming) device ids.
func (s *Service) ActiveDevices() []string {
	return s.track.Active()
}
