// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

func agentBundle(t *testing.T, dst string, payload string) *bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source("dtn://sender/app").
		Destination(dst).
		CreationTimestampNow().
		Lifetime("5m").
		PayloadBlock([]byte(payload)).
		Build()
	require.NoError(t, err)

	return &b
}

func TestApplicationAgentQueueDelivery(t *testing.T) {
	aa := NewApplicationAgent()
	eid := bpv7.MustParseEndpointID("dtn://node1/echo")
	require.NoError(t, aa.Register(eid))

	require.True(t, aa.Deliver(agentBundle(t, "dtn://node1/echo", "hi")))

	b, ok := aa.Poll(eid)
	require.True(t, ok)
	payload, err := b.PayloadData()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), payload)

	_, ok = aa.Poll(eid)
	require.False(t, ok, "queue must be empty after polling")
}

func TestApplicationAgentDelegate(t *testing.T) {
	aa := NewApplicationAgent()
	eid := bpv7.MustParseEndpointID("dtn://node1/push")

	var got []*bpv7.Bundle
	require.NoError(t, aa.RegisterDelegate(eid, func(b *bpv7.Bundle) {
		got = append(got, b)
	}))

	require.True(t, aa.Deliver(agentBundle(t, "dtn://node1/push", "a")))
	require.Len(t, got, 1)
}

func TestApplicationAgentGroupPattern(t *testing.T) {
	aa := NewApplicationAgent()
	require.NoError(t, aa.Register(bpv7.MustParseEndpointID("dtn://global/~news")))

	require.True(t, aa.Deliver(agentBundle(t, "dtn://global/~news/today", "extra extra")))
	require.True(t, aa.HasEndpoint(bpv7.MustParseEndpointID("dtn://global/~news/today")))
	require.False(t, aa.HasEndpoint(bpv7.MustParseEndpointID("dtn://other/~news")))
}

func TestApplicationAgentPendingDrain(t *testing.T) {
	aa := NewApplicationAgent()
	eid := bpv7.MustParseEndpointID("dtn://node1/late")

	require.False(t, aa.Deliver(agentBundle(t, "dtn://node1/late", "first")))
	require.False(t, aa.Deliver(agentBundle(t, "dtn://node1/late", "second")))

	require.NoError(t, aa.Register(eid))

	b, ok := aa.Poll(eid)
	require.True(t, ok)
	payload, _ := b.PayloadData()
	require.Equal(t, []byte("first"), payload, "pending bundles drain in FIFO order")

	b, ok = aa.Poll(eid)
	require.True(t, ok)
	payload, _ = b.PayloadData()
	require.Equal(t, []byte("second"), payload)
}

func TestApplicationAgentPendingCap(t *testing.T) {
	aa := NewApplicationAgent()

	for i := 0; i < pendingCap+10; i++ {
		aa.Deliver(agentBundle(t, "dtn://node1/flood", fmt.Sprintf("%d", i)))
	}

	eid := bpv7.MustParseEndpointID("dtn://node1/flood")
	require.NoError(t, aa.Register(eid))

	b, ok := aa.Poll(eid)
	require.True(t, ok)
	payload, _ := b.PayloadData()
	require.Equal(t, []byte("10"), payload, "the oldest bundles are dropped on overflow")

	count := 1
	for {
		if _, ok := aa.Poll(eid); !ok {
			break
		}
		count++
	}
	require.Equal(t, pendingCap, count)
}

func TestServiceRegistry(t *testing.T) {
	sr := NewServiceRegistry()

	sr.Register(Service{Tag: 7, Endpoint: bpv7.MustParseEndpointID("dtn://node1/echo"), Description: "echo"})
	sr.Register(Service{Tag: 7, Endpoint: bpv7.MustParseEndpointID("dtn://node1/echo2"), Description: "echo2"})

	service, known := sr.Lookup(7)
	require.True(t, known)
	require.Equal(t, "echo2", service.Description, "a tag registration overwrites its predecessor")
	require.Len(t, sr.All(), 1)
}

func TestEchoAgent(t *testing.T) {
	var sent []*bpv7.Bundle
	echo := NewEchoAgent(bpv7.MustParseEndpointID("dtn://node1/echo"), func(b *bpv7.Bundle) error {
		sent = append(sent, b)
		return nil
	})

	aa := NewApplicationAgent()
	require.NoError(t, aa.RegisterDelegate(echo.Endpoint(), echo.Deliver))

	request := agentBundle(t, "dtn://node1/echo", "ping!")
	require.True(t, aa.Deliver(request))

	require.Len(t, sent, 1)
	require.Equal(t, request.PrimaryBlock.ReportTo, sent[0].PrimaryBlock.Destination)

	payload, err := sent[0].PayloadData()
	require.NoError(t, err)
	require.Equal(t, []byte("ping!"), payload)
}
