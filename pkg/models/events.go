package models

// Event names on the backend channel. Several concerns carry both a current
// and a legacy name; backend generation is inferred from response shape,
// never from a version field, so the client listens and emits on both.
const (
	// Lifecycle.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventError      = "error"

	// Telemetry. simpleJsonData carries msgpack frames; the transport
	// decodes them before dispatch so subscribers see one shape.
	EventJSONData       = "jsonData"
	EventSimpleJSONData = "simpleJsonData"

	// Telemetry control.
	CmdStartDataReception   = "startDataReception"
	CmdStopDataReception    = "stopDataReception"
	EventStartDataReception = "startDataReceptionStatus"
	CmdSetReferenceTime     = "setReferenceTime"
	CmdTareAll              = "tareAll"

	// Directory queries.
	CmdGetDeviceSettings      = "getDeviceSettings"
	CmdGetDeviceTypes         = "getDeviceTypes"
	CmdGetGroupDefinitions    = "getGroupDefinitions"
	CmdGetConnectedDevices    = "getConnectedDevices"
	CmdGetConnectedGroups     = "getConnectedGroups"
	CmdGetGroups              = "getGroups" // legacy
	EventDeviceSettings       = "getDeviceSettingsStatus"
	EventDeviceTypes          = "getDeviceTypesStatus"
	EventGroupDefinitions     = "getGroupDefinitionsStatus"
	EventGroupDefinitionsPush = "groupDefinitions"
	EventConnectedGroups      = "getConnectedGroupsStatus"
	EventGroupsLegacy         = "getGroupsStatus" // legacy
	EventConnectedGroupList   = "connectedGroupList"
	EventConnectedDeviceList  = "connectedDeviceList"
	EventConnStatusUpdate     = "connectionStatusUpdate"

	// Group creation and activation.
	CmdCreateTemporaryGroup    = "createTemporaryGroup"
	CmdCreateDeviceGroup       = "createDeviceGroup"
	CmdSaveGroup               = "saveGroup" // legacy
	EventCreateDeviceGroup     = "createDeviceGroupStatus"
	EventGroupUpdate           = "groupUpdateStatus" // legacy
	CmdReinitializeGroups      = "reinitializeDeviceGroups"
	CmdReinitializeConnected   = "reinitializeConnectedDevices" // older alias
	EventReinitializeGroups    = "reinitializeDeviceGroupsStatus"
	EventReinitializeConnected = "reinitializeConnectedDevicesStatus"

	// Backend configuration.
	CmdGetDynamoConfig    = "getDynamoConfig"
	CmdUpdateDynamoConfig = "updateDynamoConfig"
	CmdSetDeviceConfig    = "setDeviceConfig"
	EventDynamoConfig     = "getDynamoConfigStatus"

	// Capture sessions.
	CmdStartCapture = "startCapture"
	CmdStopCapture  = "stopCapture"

	// Force/moments model management.
	CmdSetModelBypass   = "setModelBypass"
	CmdGetModelMetadata = "getModelMetadata"
	CmdPackageModel     = "packageModel"
	CmdActivateModel    = "activateModel"
	CmdDeactivateModel  = "deactivateModel"
	CmdLoadModel        = "loadModel"
)
