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

package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/calebkmiecik/FluxDeluxe/pkg/models"
)

var errEmptyEvent = errors.New("frame has no event name")

// Frame is one message on the event channel: a named event plus an arbitrary
// JSON payload. Text websocket messages carry JSON frames; binary messages
// carry msgpack, used by backend generations that emit simpleJsonData.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	if event == "" {
		return nil, errEmptyEvent
	}

	var raw json.RawMessage

	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}

		raw = b
	}

	return json.Marshal(Frame{Event: event, Data: raw})
}

// decodeTextFrame decodes a JSON frame into an event name and its payload,
// with the payload unmarshaled to generic Go values.
func decodeTextFrame(msg []byte) (event string, data any, err error) {
	var f Frame

	if err := json.Unmarshal(msg, &f); err != nil {
		return "", nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	if f.Event == "" {
		return "", nil, errEmptyEvent
	}

	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return "", nil, fmt.Errorf("failed to decode %s payload: %w", f.Event, err)
		}
	}

	return f.Event, data, nil
}

// decodeBinaryFrame decodes a msgpack message. Newer backends wrap the
// payload in an {event, data} envelope; older ones send the bare telemetry
// object, which is attributed to simpleJsonData so downstream code stays
// encoding-agnostic.
func decodeBinaryFrame(msg []byte) (event string, data any, err error) {
	var decoded any

	if err := msgpack.Unmarshal(msg, &decoded); err != nil {
		return "", nil, fmt.Errorf("failed to decode msgpack frame: %w", err)
	}

	decoded = normalizeMsgpackValue(decoded)

	if m, ok := decoded.(map[string]any); ok {
		if name, ok := m["event"].(string); ok && name != "" {
			return name, m["data"], nil
		}
	}

	return models.EventSimpleJSONData, decoded, nil
}

// normalizeMsgpackValue rewrites msgpack's map[any]any containers into the
// map[string]any shape JSON decoding produces, so handlers see one payload
// shape regardless of encoding.
func normalizeMsgpackValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeMsgpackValue(item)
		}

		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeMsgpackValue(item)
		}

		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeMsgpackValue(item)
		}

		return val
	default:
		return v
	}
}
