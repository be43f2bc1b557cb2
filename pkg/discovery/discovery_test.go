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

package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebkmiecik/FluxDeluxe/pkg/logger"
)

// testServer returns a prober pointed at an httptest server, plus the
// host/port pair DiscoverPort expects.
func testServer(t *testing.T, handler http.Handler) (*Prober, string, int) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return NewProber(logger.NewTestLogger()), u.Hostname(), port
}

func TestDiscoverPortFirstPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"socketPort": 9001}`))
	})

	p, host, port := testServer(t, mux)

	got, ok := p.DiscoverPort(context.Background(), host, port)
	require.True(t, ok)
	assert.Equal(t, 9001, got)
}

func TestDiscoverPortFallsThroughPaths(t *testing.T) {
	var probed []string

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		probed = append(probed, r.URL.Path)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/dynamo/config", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"dynamo": {"socket_io_port": "9002"}}`))
	})

	p, host, port := testServer(t, mux)

	got, ok := p.DiscoverPort(context.Background(), host, port)
	require.True(t, ok)
	assert.Equal(t, 9002, got)
	assert.Contains(t, probed, "/config")
}

func TestDiscoverPortNestedKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"services": [{"name": "http"}, {"transport": {"SocketIOPort": 9005}}]}`))
	})

	p, host, port := testServer(t, mux)

	got, ok := p.DiscoverPort(context.Background(), host, port)
	require.True(t, ok)
	assert.Equal(t, 9005, got)
}

func TestDiscoverPortMiss(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no matching key", `{"httpPort": 5000}`},
		{"port out of range", `{"socketPort": 80}`},
		{"non-numeric value", `{"socketPort": "dynamic"}`},
		{"malformed json", `{"socketPort": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			})

			p, host, port := testServer(t, mux)

			got, ok := p.DiscoverPort(context.Background(), host, port)
			assert.False(t, ok)
			assert.Zero(t, got)
		})
	}
}

func TestFindSocketPortFirstKeyInDocumentOrderWins(t *testing.T) {
	doc := []byte(`{"alpha_socket_port": 1001, "beta_socket_port": 1002}`)

	// Map-based decoding would make this nondeterministic; the scan must
	// always land on the first key as written.
	for i := 0; i < 200; i++ {
		port, ok := findSocketPort(doc)
		require.True(t, ok)
		require.Equal(t, 1001, port)
	}
}

func TestFindSocketPortDocumentOrderAcrossNesting(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{
			name: "nested match precedes later top-level match",
			doc:  `{"transport": {"socketPort": 9001}, "socket_port": 9002}`,
			want: 9001,
		},
		{
			name: "invalid first candidate falls through to the next",
			doc:  `{"socketPort": 80, "SocketIOPort": 9003}`,
			want: 9003,
		},
		{
			name: "match inside array element",
			doc:  `[{"name": "http"}, {"socket_io_port": "9004"}]`,
			want: 9004,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, ok := findSocketPort([]byte(tt.doc))
			require.True(t, ok)
			assert.Equal(t, tt.want, port)
		})
	}
}

func TestDiscoverPortUnreachableHost(t *testing.T) {
	p := NewProber(logger.NewTestLogger())

	// Port 1: nothing listens there.
	got, ok := p.DiscoverPort(context.Background(), "127.0.0.1", 1)
	assert.False(t, ok)
	assert.Zero(t, got)
}

func TestDiscoverPortCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/config", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"socketPort": 9001}`))
	})

	p, host, port := testServer(t, mux)

	_, ok := p.DiscoverPort(ctx, host, port)
	assert.False(t, ok)
}
