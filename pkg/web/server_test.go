// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package web

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/core"
	"github.com/dtn7/dtn7-gold/pkg/peers"
	"github.com/dtn7/dtn7-gold/pkg/storage"
)

// peersNewPeer builds a static test peer for an endpoint URI.
func peersNewPeer(uri string) peers.Peer {
	return peers.NewPeer(bpv7.MustParseEndpointID(uri), "10.0.0.2:4556", peers.Static)
}

// startedServer builds a Core plus a management API on an ephemeral port.
func startedServer(t *testing.T) (*core.Core, string) {
	t.Helper()

	c, err := core.NewCore(testOptions())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	server := NewServer(c, "127.0.0.1:0")
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	return c, "http://" + server.Address()
}

// testOptions for the test Core.
func testOptions() core.Options {
	return core.Options{
		NodeId: "dtn://n1/",
		Store:  storage.NewMemoryStore(),
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestWebTestRoute(t *testing.T) {
	_, base := startedServer(t)

	code, body := get(t, base+"/test")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Test route working", body)
}

func TestWebStatus(t *testing.T) {
	_, base := startedServer(t)

	code, body := get(t, base+"/status")
	require.Equal(t, http.StatusOK, code)

	var status struct {
		NodeId     string            `json:"nodeId"`
		Version    string            `json:"version"`
		Statistics map[string]uint64 `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	require.Equal(t, "dtn://n1/", status.NodeId)
	require.Equal(t, Version, status.Version)
	require.Contains(t, status.Statistics, "stored")
}

func TestWebLocalEcho(t *testing.T) {
	// Scenario: register ping and echo, send a bundle from ping to echo and
	// fetch it back base64 encoded from the endpoint.
	_, base := startedServer(t)

	for _, ep := range []string{"dtn://n1/ping", "dtn://n1/echo"} {
		code, body := get(t, base+"/register?endpoint="+ep)
		require.Equal(t, http.StatusOK, code)
		require.NotContains(t, body, "Error:")
	}

	resp, err := http.Post(
		base+"/send?dst=dtn://n1/echo&src=dtn://n1/ping&lifetime=60000",
		"application/octet-stream",
		bytes.NewReader([]byte("Hello, DTN!")))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.NotContains(t, string(body), "Error:")

	code, encoded := get(t, base+"/endpoint?endpoint=dtn://n1/echo")
	require.Equal(t, http.StatusOK, code)
	require.NotEqual(t, "Nothing to receive", encoded)

	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	b, err := bpv7.ParseBundleBytes(data)
	require.NoError(t, err)
	payload, err := b.PayloadData()
	require.NoError(t, err)
	require.Equal(t, []byte("Hello, DTN!"), payload)

	// Delivered but not yet collected by the janitor.
	var bundles struct {
		Count int `json:"count"`
	}
	_, listBody := get(t, base+"/bundles")
	require.NoError(t, json.Unmarshal([]byte(listBody), &bundles))
	require.Equal(t, 1, bundles.Count)

	code, empty := get(t, base+"/endpoint?endpoint=dtn://n1/echo")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Nothing to receive", empty)
}

func TestWebBundleDelete(t *testing.T) {
	c, base := startedServer(t)

	b, err := bpv7.Builder().
		Source("dtn://n1/app").
		Destination("dtn://far/app").
		CreationTimestampNow().
		Lifetime("1h").
		PayloadBlock([]byte("delete me")).
		Build()
	require.NoError(t, err)
	require.NoError(t, c.Store().Push(&b))

	var bundles struct {
		Count   int      `json:"count"`
		Bundles []string `json:"bundles"`
	}
	_, body := get(t, base+"/bundles")
	require.NoError(t, json.Unmarshal([]byte(body), &bundles))
	require.Equal(t, 1, bundles.Count)

	req, err := http.NewRequest(http.MethodDelete, base+"/bundles/"+bundles.Bundles[0], nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = get(t, base+"/bundles")
	require.NoError(t, json.Unmarshal([]byte(body), &bundles))
	require.Equal(t, 0, bundles.Count)

	// Deleting again yields a native 404.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebLegacyErrors(t *testing.T) {
	_, base := startedServer(t)

	code, body := get(t, base+"/register?endpoint=banana")
	require.Equal(t, http.StatusOK, code, "legacy errors answer with status 200")
	require.True(t, strings.HasPrefix(body, "Error:"), body)

	resp, err := http.Post(base+"/send?dst=", "application/octet-stream", bytes.NewReader(nil))
	require.NoError(t, err)
	sendBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.True(t, strings.HasPrefix(string(sendBody), "Error:"), string(sendBody))
}

func TestWebPeers(t *testing.T) {
	c, base := startedServer(t)

	peer := fmt.Sprintf("dtn://peer%d/", 2)
	c.PeerManager().AddOrUpdate(peersNewPeer(peer))

	var peersResponse struct {
		Count int `json:"count"`
		Peers []struct {
			Eid  string `json:"eid"`
			Type string `json:"type"`
		} `json:"peers"`
	}
	_, body := get(t, base+"/peers")
	require.NoError(t, json.Unmarshal([]byte(body), &peersResponse))
	require.Equal(t, 1, peersResponse.Count)
	require.Equal(t, "dtn://peer2/", peersResponse.Peers[0].Eid)
	require.Equal(t, "static", peersResponse.Peers[0].Type)
}
