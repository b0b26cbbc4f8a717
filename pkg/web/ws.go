// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// wsStatus is one frame of the /ws status stream.
type wsStatus struct {
	NodeId     string            `json:"nodeId"`
	Uptime     uint64            `json:"uptime"`
	Statistics map[string]uint64 `json:"statistics"`
	Peers      int               `json:"peers"`
}

// handleWs streams status snapshots to a WebSocket client: one frame on
// connect, then one every five seconds until the client goes away.
func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	// Drain client frames to notice a closed connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		status := wsStatus{
			NodeId:     s.core.NodeId().String(),
			Uptime:     uint64(s.core.Uptime().Seconds()),
			Statistics: s.core.StatsSnapshot(),
			Peers:      len(s.core.PeerManager().GetAll()),
		}

		if err := conn.WriteJSON(status); err != nil {
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
