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

// Package discovery locates the backend's event channel port when it is not
// fixed, by probing the HTTP configuration endpoints the various backend
// generations expose. A miss is a negative result, never an error.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
)

const defaultProbeTimeout = 700 * time.Millisecond

// Ordered candidate paths; generations moved the config endpoint around.
var candidatePaths = []string{
	"config",
	"dynamo/config",
	"api/config",
	"flux/config",
	"v1/config",
	"backend/config",
}

const (
	minPort = 1000
	maxPort = 65535
)

// Prober probes backend HTTP config endpoints for the channel port.
type Prober struct {
	client *http.Client
	log    zerolog.Logger
}

// NewProber creates a Prober with the default per-request timeout.
func NewProber(log logger.Logger) *Prober {
	return &Prober{
		client: &http.Client{Timeout: defaultProbeTimeout},
		log:    log.WithComponent("discovery"),
	}
}

// DiscoverPort probes http://host:httpPort/<path> for each candidate path
// and returns the first socket-port value found in the decoded JSON.
// Returns (0, false) when nothing matched; that is not an error condition.
func (p *Prober) DiscoverPort(ctx context.Context, host string, httpPort int) (int, bool) {
	base := strings.TrimSuffix(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	for _, path := range candidatePaths {
		addr := fmt.Sprintf("%s:%d/%s", base, httpPort, path)

		port, ok := p.probe(ctx, addr)
		if ok {
			p.log.Debug().Str("url", addr).Int("port", port).Msg("Discovered channel port")
			return port, true
		}

		if ctx.Err() != nil {
			return 0, false
		}
	}

	return 0, false
}

func (p *Prober) probe(ctx context.Context, addr string) (int, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return 0, false
	}

	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, false
	}

	return findSocketPort(body)
}

// findSocketPort scans the raw JSON document token by token, returning the
// first key in document order that contains both "socket" and "port"
// (case-insensitive) with a value that parses as a valid port. Backends
// publish more than one port-like key; the first one wins, matching how the
// original config documents are read top to bottom.
func findSocketPort(doc []byte) (int, bool) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	type frame struct {
		object  bool
		haveKey bool
		key     string
	}

	var stack []frame

	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, false
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				if n := len(stack); n > 0 && stack[n-1].object {
					stack[n-1].haveKey = false
				}

				stack = append(stack, frame{object: t == '{'})
			case '}', ']':
				if len(stack) <= 1 {
					return 0, false
				}

				stack = stack[:len(stack)-1]
			}
		default:
			if len(stack) == 0 {
				// Scalar document.
				return 0, false
			}

			top := &stack[len(stack)-1]

			if top.object && !top.haveKey {
				s, ok := t.(string)
				if !ok {
					return 0, false
				}

				top.key = s
				top.haveKey = true

				continue
			}

			if top.object {
				key := strings.ToLower(top.key)
				top.haveKey = false

				if strings.Contains(key, "socket") && strings.Contains(key, "port") {
					if port, ok := asPort(t); ok {
						return port, true
					}
				}
			}
		}
	}
}

func asPort(v any) (int, bool) {
	var port int

	switch n := v.(type) {
	case float64:
		port = int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}

		port = int(i)
	case string:
		if _, err := fmt.Sscanf(n, "%d", &port); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}

	if port < minPort || port > maxPort {
		return 0, false
	}

	return port, true
}
