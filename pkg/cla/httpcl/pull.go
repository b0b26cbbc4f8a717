// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package httpcl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// defaultPollInterval between two polls of all peers.
const defaultPollInterval = 30 * time.Second

// PullClient is the polling HTTP convergence layer: it periodically fetches
// each known peer's bundle list, diffs it against its known-set and downloads
// the new ones. Sending is unsupported.
type PullClient struct {
	client       *http.Client
	pollInterval time.Duration

	// peersFunc yields the peers to poll on each tick.
	peersFunc func() []peers.Peer

	// known holds the already downloaded bundle IDs.
	knownMutex sync.Mutex
	known      map[string]struct{}

	incoming chan cla.IncomingBundle

	stopSyn  chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPullClient polling the peers yielded by peersFunc. A non-positive
// interval selects the default of 30 seconds.
func NewPullClient(pollInterval time.Duration, peersFunc func() []peers.Peer) *PullClient {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &PullClient{
		client:       &http.Client{Timeout: 5 * time.Second},
		pollInterval: pollInterval,
		peersFunc:    peersFunc,
		known:        make(map[string]struct{}),
		incoming:     make(chan cla.IncomingBundle, 32),
		stopSyn:      make(chan struct{}),
	}
}

// ID of this instance.
func (p *PullClient) ID() string {
	return fmt.Sprintf("%s://pull", claTypePull)
}

// Name is "httppull".
func (p *PullClient) Name() string {
	return claTypePull
}

// Incoming is the stream of downloaded bundles.
func (p *PullClient) Incoming() <-chan cla.IncomingBundle {
	return p.incoming
}

// Start spawns the poll loop.
func (p *PullClient) Start() error {
	p.wg.Add(1)
	go p.pollLoop()

	return nil
}

func (p *PullClient) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopSyn:
			return

		case <-ticker.C:
			for _, peer := range p.peersFunc() {
				p.pollPeer(peer)
			}
		}
	}
}

// pollPeer fetches one peer's bundle list and downloads unknown bundles.
func (p *PullClient) pollPeer(peer peers.Peer) {
	base := peerURL(peer, claTypePull, "http", claTypePush)
	if base == "" {
		return
	}

	resp, err := p.client.Get(base + "/status/bundles")
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"cla":  claTypePull,
			"peer": peer.Eid,
		}).Debug("Polling a peer's bundle list failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	var list bundlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		log.WithError(err).WithField("cla", claTypePull).Debug("Decoding a bundle list failed")
		return
	}

	for _, id := range list.Bundles {
		p.knownMutex.Lock()
		_, known := p.known[id]
		if !known {
			p.known[id] = struct{}{}
		}
		p.knownMutex.Unlock()

		if !known {
			p.download(peer, base, id)
		}
	}
}

// download one bundle and emit it upstream.
func (p *PullClient) download(peer peers.Peer, base, id string) {
	resp, err := p.client.Get(base + "/download?bundle=" + id)
	if err != nil {
		log.WithError(err).WithField("cla", claTypePull).Debug("Downloading a bundle failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	b, err := bpv7.ParseBundle(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("cla", claTypePull).Warn("Decoding a downloaded bundle failed")
		return
	}

	conn := cla.Connection{
		Id:            fmt.Sprintf("%s://%s", claTypePull, peer.Address),
		RemoteEid:     peer.Eid,
		RemoteAddress: peer.Address,
		ClaType:       claTypePull,
		EstablishedAt: time.Now(),
	}

	select {
	case p.incoming <- cla.IncomingBundle{Bundle: &b, Connection: conn}:
	case <-p.stopSyn:
	}
}

// Stop the poll loop and close the incoming stream.
func (p *PullClient) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopSyn)
		p.wg.Wait()
		close(p.incoming)
	})
}

// SendBundle is unsupported for the polling client.
func (p *PullClient) SendBundle(_ *bpv7.Bundle, _ peers.Peer) error {
	return cla.ErrOperationNotSupported
}

// CanReach is always false; the PullClient never sends.
func (p *PullClient) CanReach(_ peers.Peer) bool {
	return false
}

// Connections is always empty.
func (p *PullClient) Connections() []cla.Connection {
	return nil
}
