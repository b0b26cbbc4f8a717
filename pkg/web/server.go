// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package web is the management HTTP API: node status, bundle inspection,
// endpoint registration and bundle submission.
package web

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/core"
)

// Version reported by GET /status.
const Version = "0.1.0"

// Server is the management HTTP API bound to one Core.
type Server struct {
	core *core.Core

	listenAddress string
	listener      net.Listener
	server        *http.Server
}

// NewServer for a Core, listening on the given address (default
// "127.0.0.1:3000").
func NewServer(c *core.Core, listenAddress string) *Server {
	if listenAddress == "" {
		listenAddress = "127.0.0.1:3000"
	}

	return &Server{
		core:          c,
		listenAddress: listenAddress,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return fmt.Errorf("binding the management API failed: %w", err)
	}
	s.listener = listener

	router := mux.NewRouter()
	// Bundle IDs contain URIs; their slashes must not be path-cleaned away.
	router.SkipClean(true)
	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/test", s.handleTest).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/bundles", s.handleBundles).Methods(http.MethodGet)
	router.HandleFunc("/bundles/{id:.+}", s.handleDeleteBundle).Methods(http.MethodDelete)
	router.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	router.HandleFunc("/register", s.handleRegister).Methods(http.MethodGet)
	router.HandleFunc("/unregister", s.handleUnregister).Methods(http.MethodGet)
	router.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/endpoint", s.handleEndpoint).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWs).Methods(http.MethodGet)

	s.server = &http.Server{Handler: router}
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("Management API server erred")
		}
	}()

	log.WithField("address", s.listenAddress).Info("Management API is listening")

	return nil
}

// Address the server is bound to.
func (s *Server) Address() string {
	if s.listener == nil {
		return s.listenAddress
	}
	return s.listener.Addr().String()
}

// Stop the server.
func (s *Server) Stop() {
	if s.server != nil {
		_ = s.server.Close()
	}
}

// textError writes a legacy "Error:" line with HTTP status 200.
func textError(w http.ResponseWriter, msg string) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", msg)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<ul>
<li><a href="/status">/status</a></li>
<li><a href="/stats">/stats</a></li>
<li><a href="/bundles">/bundles</a></li>
<li><a href="/peers">/peers</a></li>
</ul>
</body>
</html>
`, s.core.NodeId(), s.core.NodeId())
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "Test route working")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	stats := s.core.StatsSnapshot()

	response := map[string]interface{}{
		"nodeId":  s.core.NodeId().String(),
		"uptime":  uint64(s.core.Uptime().Seconds()),
		"version": Version,
		"statistics": map[string]uint64{
			"incoming":  stats["incoming"],
			"outgoing":  stats["outgoing"],
			"delivered": stats["delivered"],
			"stored":    stats["stored"],
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.core.StatsSnapshot())
}

func (s *Server) handleBundles(w http.ResponseWriter, _ *http.Request) {
	ids := s.core.Store().AllIds()
	if ids == nil {
		ids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"count":   len(ids),
		"bundles": ids,
	})
}

func (s *Server) handleDeleteBundle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.core.Store().Remove(id); err != nil {
		http.Error(w, "no such bundle", http.StatusNotFound)
		return
	}

	_, _ = fmt.Fprintf(w, "Deleted bundle %s\n", id)
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	all := s.core.PeerManager().GetAll()

	peerList := make([]map[string]interface{}, 0, len(all))
	for _, peer := range all {
		services := map[string]string{}
		for tag, name := range peer.Services {
			services[strconv.Itoa(int(tag))] = name
		}

		peerList = append(peerList, map[string]interface{}{
			"eid":         peer.Eid.String(),
			"type":        peer.Kind.String(),
			"lastContact": peer.LastContact.Format(time.RFC3339),
			"services":    services,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"count": len(peerList),
		"peers": peerList,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	eid, err := bpv7.ParseEndpointID(r.URL.Query().Get("endpoint"))
	if err != nil {
		textError(w, fmt.Sprintf("invalid endpoint: %v", err))
		return
	}

	if err := s.core.RegisterEndpoint(eid); err != nil {
		textError(w, err.Error())
		return
	}

	_, _ = fmt.Fprintf(w, "Registered endpoint %v\n", eid)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	eid, err := bpv7.ParseEndpointID(r.URL.Query().Get("endpoint"))
	if err != nil {
		textError(w, fmt.Sprintf("invalid endpoint: %v", err))
		return
	}

	s.core.UnregisterEndpoint(eid)
	_, _ = fmt.Fprintf(w, "Unregistered endpoint %v\n", eid)
}

// handleSend builds a bundle from the query parameters and the request body.
// The lifetime parameter counts milliseconds and is converted to the bundle's
// seconds on ingest; it defaults to one hour.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	src := query.Get("src")
	if src == "" {
		src = s.core.NodeId().String()
	}
	dst := query.Get("dst")
	if dst == "" {
		textError(w, "dst parameter is missing")
		return
	}

	lifetimeSeconds := uint64(3600)
	if lifetimeRaw := query.Get("lifetime"); lifetimeRaw != "" {
		ms, err := strconv.ParseUint(lifetimeRaw, 10, 64)
		if err != nil {
			textError(w, fmt.Sprintf("invalid lifetime: %v", err))
			return
		}
		lifetimeSeconds = ms / 1000
		if lifetimeSeconds == 0 {
			lifetimeSeconds = 1
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		textError(w, fmt.Sprintf("reading body failed: %v", err))
		return
	}

	b, err := bpv7.Builder().
		Source(src).
		Destination(dst).
		CreationTimestampNow().
		Lifetime(lifetimeSeconds).
		HopCountBlock(64).
		PayloadBlock(payload).
		Build()
	if err != nil {
		textError(w, fmt.Sprintf("building bundle failed: %v", err))
		return
	}

	if err := s.core.SubmitBundle(&b); err != nil {
		textError(w, fmt.Sprintf("submitting bundle failed: %v", err))
		return
	}

	_, _ = fmt.Fprintf(w, "Sent bundle %v\n", b.ID())
}

// handleEndpoint pops the next pending bundle of a local endpoint, base64
// encoded, or the literal "Nothing to receive".
func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	eid, err := bpv7.ParseEndpointID(r.URL.Query().Get("endpoint"))
	if err != nil {
		textError(w, fmt.Sprintf("invalid endpoint: %v", err))
		return
	}

	b, ok := s.core.ApplicationAgent().Poll(eid)
	if !ok {
		_, _ = io.WriteString(w, "Nothing to receive")
		return
	}

	data, err := b.WriteBundleBytes()
	if err != nil {
		textError(w, fmt.Sprintf("encoding bundle failed: %v", err))
		return
	}

	_, _ = io.WriteString(w, base64.StdEncoding.EncodeToString(data))
}
