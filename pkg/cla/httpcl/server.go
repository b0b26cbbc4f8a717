// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package httpcl provides the HTTP convergence layers: an ingress server
// accepting pushed bundles, an active push client and a polling pull client.
package httpcl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

const (
	claTypePush = "httpcl"
	claTypePull = "httppull"
)

// bundlesResponse is the JSON body of GET /status/bundles.
type bundlesResponse struct {
	Bundles []string `json:"bundles"`
}

// StoreView is the read access the ingress server offers to remote pollers.
type StoreView interface {
	// AllIds of the stored bundles.
	AllIds() []string

	// GetBundleData returns a stored bundle's encoded bytes.
	GetBundleData(id string) ([]byte, error)
}

// Server is the receive-only HTTP convergence layer: it accepts pushed
// bundles on POST /push and serves this node's bundles to polling peers on
// GET /status/bundles and GET /download.
type Server struct {
	listenAddress string
	store         StoreView

	listener net.Listener
	server   *http.Server

	incoming chan cla.IncomingBundle

	stopSyn  chan struct{}
	stopOnce sync.Once
}

// NewServer listening on the given address, serving the store's bundles.
func NewServer(listenAddress string, store StoreView) *Server {
	return &Server{
		listenAddress: listenAddress,
		store:         store,
		incoming:      make(chan cla.IncomingBundle, 32),
		stopSyn:       make(chan struct{}),
	}
}

// ID of this instance.
func (s *Server) ID() string {
	return fmt.Sprintf("%s://%s", claTypePush, s.listenAddress)
}

// Name is "httpcl".
func (s *Server) Name() string {
	return claTypePush
}

// Incoming is the stream of pushed bundles.
func (s *Server) Incoming() <-chan cla.IncomingBundle {
	return s.incoming
}

// Start binds the HTTP listener.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return err
	}
	s.listener = listener

	router := mux.NewRouter()
	router.HandleFunc("/push", s.handlePush).Methods(http.MethodPost)
	router.HandleFunc("/status/bundles", s.handleStatusBundles).Methods(http.MethodGet)
	router.HandleFunc("/download", s.handleDownload).Methods(http.MethodGet)

	s.server = &http.Server{Handler: router}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).WithField("cla", claTypePush).Warn("HTTP CLA server erred")
		}
	}()

	log.WithFields(log.Fields{
		"cla":     claTypePush,
		"address": s.listenAddress,
	}).Info("HTTP CLA is listening")

	return nil
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body failed", http.StatusBadRequest)
		return
	}

	b, err := bpv7.ParseBundle(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).WithField("cla", claTypePush).Warn("Decoding a pushed bundle failed")
		http.Error(w, "decoding bundle failed", http.StatusBadRequest)
		return
	}

	conn := cla.Connection{
		Id:            fmt.Sprintf("%s://%s", claTypePush, r.RemoteAddr),
		RemoteAddress: r.RemoteAddr,
		ClaType:       claTypePush,
		EstablishedAt: time.Now(),
	}

	select {
	case s.incoming <- cla.IncomingBundle{Bundle: &b, Connection: conn}:
		w.WriteHeader(http.StatusAccepted)
	case <-s.stopSyn:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	}
}

func (s *Server) handleStatusBundles(w http.ResponseWriter, _ *http.Request) {
	ids := s.store.AllIds()
	if ids == nil {
		ids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bundlesResponse{Bundles: ids})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("bundle")

	data, err := s.store.GetBundleData(id)
	if err != nil {
		http.Error(w, "no such bundle", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// Stop shuts the server down, awaits the running handlers and closes the
// incoming stream.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSyn)
		if s.server != nil {
			_ = s.server.Shutdown(context.Background())
		}
		close(s.incoming)
	})
}

// SendBundle is unsupported; the Server cannot actively send.
func (s *Server) SendBundle(_ *bpv7.Bundle, _ peers.Peer) error {
	return cla.ErrOperationNotSupported
}

// CanReach is always false for the receive-only Server.
func (s *Server) CanReach(_ peers.Peer) bool {
	return false
}

// Connections is always empty; HTTP requests are short-lived.
func (s *Server) Connections() []cla.Connection {
	return nil
}
