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

package directory

// EnvelopeShape tags which response envelope a backend generation used.
// Response shape is the only version signal available; an unrecognized shape
// decodes as Empty, never as an error.
type EnvelopeShape int

const (
	ShapeEmpty EnvelopeShape = iota
	ShapeFlat
	ShapeDataWrapped
	ShapeResponseWrapped
	ShapeGroupsWrapped
)

// decodeEnvelope normalizes the three known response envelope shapes, plus
// the {groups: [...]} variant, into one item list. All downstream code
// operates on the normalized form only.
func decodeEnvelope(payload any) ([]map[string]any, EnvelopeShape) {
	switch val := payload.(type) {
	case []any:
		return itemList(val), ShapeFlat
	case map[string]any:
		if inner, ok := val["response"]; ok {
			if items := asList(inner); items != nil {
				return itemList(items), ShapeResponseWrapped
			}
		}

		if inner, ok := val["data"]; ok {
			if items := asList(inner); items != nil {
				return itemList(items), ShapeDataWrapped
			}
		}

		if inner, ok := val["groups"]; ok {
			if items := asList(inner); items != nil {
				return itemList(items), ShapeGroupsWrapped
			}
		}

		// Wrapped payloads may themselves wrap {devices|groups: [...]}.
		if inner, ok := unwrap(val)["devices"]; ok {
			if items := asList(inner); items != nil {
				return itemList(items), ShapeFlat
			}
		}
	}

	return nil, ShapeEmpty
}

// unwrap peels one response/data envelope level when the inner value is an
// object rather than a list.
func unwrap(m map[string]any) map[string]any {
	for _, key := range []string{"response", "data"} {
		if inner, ok := m[key].(map[string]any); ok {
			return inner
		}
	}

	return m
}

func asList(v any) []any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	return list
}

func itemList(raw []any) []map[string]any {
	out := make([]map[string]any, 0, len(raw))

	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}

	return out
}

// stringField returns the first non-empty string value among keys.
func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}

	return ""
}

// intField returns the first numeric value among keys.
func intField(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
		}
	}

	return 0
}

func listField(m map[string]any, keys ...string) []map[string]any {
	for _, key := range keys {
		if items := asList(m[key]); items != nil {
			return itemList(items)
		}
	}

	return nil
}
