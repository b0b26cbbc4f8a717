// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package httpcl

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// defaultMaxRetries for a failing push request.
const defaultMaxRetries = 3

// PushClient is the send-only HTTP convergence layer: it POSTs encoded
// bundles to a peer's /push endpoint, retrying with a linear backoff of
// 0.5 × attempt seconds.
type PushClient struct {
	client     *http.Client
	maxRetries int

	incoming chan cla.IncomingBundle
}

// NewPushClient with the given request timeout; zero values select a timeout
// of five seconds and three retries.
func NewPushClient(timeout time.Duration, maxRetries int) *PushClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &PushClient{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		incoming:   make(chan cla.IncomingBundle),
	}
}

// ID of this instance.
func (p *PushClient) ID() string {
	return fmt.Sprintf("%s://push", claTypePush)
}

// Name is "httpcl".
func (p *PushClient) Name() string {
	return claTypePush
}

// Incoming never yields; the PushClient cannot receive.
func (p *PushClient) Incoming() <-chan cla.IncomingBundle {
	return p.incoming
}

// Start is a no-op.
func (p *PushClient) Start() error {
	return nil
}

// Stop closes the always-empty incoming stream.
func (p *PushClient) Stop() {
	close(p.incoming)
}

// peerURL derives the peer's base URL from its CLA list.
func peerURL(peer peers.Peer, claNames ...string) string {
	for _, ca := range peer.ClaList {
		for _, name := range claNames {
			if ca.Name != name {
				continue
			}

			host := peer.Address
			if h, _, err := net.SplitHostPort(peer.Address); err == nil {
				host = h
			}
			if ca.Port != 0 {
				return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprintf("%d", ca.Port)))
			}
			return fmt.Sprintf("http://%s", peer.Address)
		}
	}
	return ""
}

// CanReach checks if the peer advertises an HTTP address.
func (p *PushClient) CanReach(peer peers.Peer) bool {
	return peerURL(peer, claTypePush, "http") != ""
}

// SendBundle POSTs the encoded bundle; any 2xx response is a success.
func (p *PushClient) SendBundle(b *bpv7.Bundle, peer peers.Peer) error {
	base := peerURL(peer, claTypePush, "http")
	if base == "" {
		return cla.ErrInvalidPeerAddress
	}

	data, err := b.WriteBundleBytes()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		resp, err := p.client.Post(base+"/push", "application/octet-stream", bytes.NewReader(data))
		if err != nil {
			lastErr = err
		} else {
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				log.WithFields(log.Fields{
					"cla":    claTypePush,
					"bundle": b.ID(),
					"url":    base,
				}).Debug("Pushed bundle via HTTP")
				return nil
			}
			lastErr = &cla.HttpError{Code: resp.StatusCode}
		}

		if attempt < p.maxRetries {
			time.Sleep(time.Duration(float64(attempt) * 0.5 * float64(time.Second)))
		}
	}

	return fmt.Errorf("pushing bundle to %s failed after %d attempts: %w", base, p.maxRetries, lastErr)
}

// Connections is always empty; HTTP requests are short-lived.
func (p *PushClient) Connections() []cla.Connection {
	return nil
}
