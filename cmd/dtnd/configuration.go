// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/agent"
	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/cla"
	"github.com/dtn7/dtn7-gold/pkg/cla/httpcl"
	"github.com/dtn7/dtn7-gold/pkg/cla/tcpclv4"
	"github.com/dtn7/dtn7-gold/pkg/cla/udpcl"
	"github.com/dtn7/dtn7-gold/pkg/core"
	"github.com/dtn7/dtn7-gold/pkg/discovery"
	"github.com/dtn7/dtn7-gold/pkg/peers"
	"github.com/dtn7/dtn7-gold/pkg/routing"
	"github.com/dtn7/dtn7-gold/pkg/storage"
	"github.com/dtn7/dtn7-gold/pkg/web"
)

// tomlConfig is the daemon's TOML configuration.
type tomlConfig struct {
	Core      coreConf
	Logging   logConf
	Web       webConf
	Discovery discoveryConf
	Routing   routingConf
	Endpoints []string
	Services  map[string]string
	Agents    agentsConf
	Cla       []claConf
	Peer      []peerConf
}

// agentsConf enables built-in application agents.
type agentsConf struct {
	Echo string
}

type coreConf struct {
	NodeId                   string `toml:"node-id"`
	Store                    string
	Workdir                  string
	JanitorInterval          uint `toml:"janitor-interval"`
	PeerTimeout              uint `toml:"peer-timeout"`
	GenerateStatusReports    bool `toml:"generate-status-reports"`
	ParallelBundleProcessing bool `toml:"parallel-bundle-processing"`
}

type logConf struct {
	Level        string
	Format       string
	ReportCaller bool `toml:"report-caller"`
}

type webConf struct {
	Listen string
}

type discoveryConf struct {
	Disable  bool
	IPv4     bool
	IPv6     bool
	Interval uint
}

type routingConf struct {
	Algorithm string
	Settings  map[string]string
}

// claConf configures one convergence layer instance. The duck-typed settings
// of the external configuration are parsed here, exactly once.
type claConf struct {
	Type          string
	Listen        string
	MaxBundleSize int `toml:"max-bundle-size"`
	Interval      uint
}

// peerConf preloads one static peer.
type peerConf struct {
	Eid     string
	Address string
	Cla     []peerClaConf
}

type peerClaConf struct {
	Name string
	Port uint16
}

// daemon is the assembled node.
type daemon struct {
	core      *core.Core
	webServer *web.Server
	discovery *discovery.Manager
}

// setupLogging configures logrus from the configuration.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithError(err).WithField("level", conf.Level).Warn("Unknown log level, keeping default")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.WithField("format", conf.Format).Warn("Unknown log format")
	}
}

// storeView adapts a storage.Store to the HTTP CLA's read contract.
type storeView struct {
	store storage.Store
}

func (sv storeView) AllIds() []string {
	return sv.store.AllIds()
}

func (sv storeView) GetBundleData(id string) ([]byte, error) {
	b, err := sv.store.GetBundle(id)
	if err != nil {
		return nil, err
	}
	return b.WriteBundleBytes()
}

// parseClaPort extracts the port of a listen address like "0.0.0.0:4556".
func parseClaPort(listen string) uint16 {
	if _, portStr, err := net.SplitHostPort(listen); err == nil {
		if port, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			return uint16(port)
		}
	}
	return 0
}

// parseConfig reads the TOML file and assembles the daemon.
func parseConfig(filename string) (*daemon, error) {
	var conf tomlConfig
	if _, err := toml.DecodeFile(filename, &conf); err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", filename, err)
	}

	setupLogging(conf.Logging)

	if conf.Core.NodeId == "" {
		return nil, fmt.Errorf("core.node-id must not be empty")
	}

	store, err := storage.NewStore(conf.Core.Store, conf.Core.Workdir)
	if err != nil {
		return nil, err
	}

	var routingAgent routing.Agent
	if conf.Routing.Algorithm != "" {
		if routingAgent, err = routing.NewAgent(conf.Routing.Algorithm, conf.Routing.Settings); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	c, err := core.NewCore(core.Options{
		NodeId:                   conf.Core.NodeId,
		Store:                    store,
		Routing:                  routingAgent,
		GenerateStatusReports:    conf.Core.GenerateStatusReports,
		ParallelBundleProcessing: conf.Core.ParallelBundleProcessing,
		JanitorInterval:          time.Duration(conf.Core.JanitorInterval) * time.Second,
		PeerTimeout:              time.Duration(conf.Core.PeerTimeout) * time.Second,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	d := &daemon{core: c}

	// Application endpoints and services.
	for _, endpoint := range conf.Endpoints {
		eid, err := bpv7.ParseEndpointID(endpoint)
		if err != nil {
			log.WithError(err).WithField("endpoint", endpoint).Warn("Skipping broken endpoint")
			continue
		}

		if err := c.RegisterEndpoint(eid); err != nil {
			log.WithError(err).WithField("endpoint", endpoint).Warn("Registering endpoint failed")
		}
	}

	// An optional echo responder answers every bundle with its own payload.
	if conf.Agents.Echo != "" {
		eid, err := bpv7.ParseEndpointID(conf.Agents.Echo)
		if err != nil {
			log.WithError(err).WithField("endpoint", conf.Agents.Echo).Warn("Skipping broken echo endpoint")
		} else {
			echo := agent.NewEchoAgent(eid, c.SubmitBundle)
			// The response is submitted from a fresh goroutine; the delegate
			// itself runs within the processing pipeline.
			err = c.RegisterEndpointDelegate(eid, func(b *bpv7.Bundle) {
				go echo.Deliver(b)
			})
			if err != nil {
				log.WithError(err).WithField("endpoint", conf.Agents.Echo).Warn("Registering the echo agent failed")
			}
		}
	}

	for tagStr, name := range conf.Services {
		tag, err := strconv.ParseUint(tagStr, 10, 8)
		if err != nil {
			log.WithField("tag", tagStr).Warn("Skipping service with a broken tag")
			continue
		}

		endpoint := bpv7.MustParseEndpointID(
			strings.TrimSuffix(c.NodeId().String(), "/") + "/" + name)

		c.Services().Register(agent.Service{
			Tag:         uint8(tag),
			Endpoint:    endpoint,
			Description: name,
		})
	}

	// Convergence layers. A failing CLA is logged, not fatal.
	var announcements []discovery.Announcement
	for _, claC := range conf.Cla {
		switch claC.Type {
		case "tcp", "tcpclv4":
			cl := tcpclv4.New(claC.Listen, c.NodeId(), tcpclv4.Hooks{
				OnSessionEstablished: func(eid bpv7.EndpointID, conn cla.Connection) {
					if _, known := c.PeerManager().GetPeer(eid); !known {
						peer := peers.NewPeer(eid, conn.RemoteAddress, peers.Dynamic)
						peer.ClaList = []peers.CLAAddress{{Name: "tcpclv4"}}
						c.PeerManager().AddOrUpdate(peer)
					}
					c.PeerManager().ConnectionEvent(eid, true)
				},
				OnSessionClosed: func(eid bpv7.EndpointID) {
					c.PeerManager().RecordFailure(eid)
					c.PeerManager().ConnectionEvent(eid, false)
				},
			})
			if err := c.RegisterCLA(cl); err != nil {
				log.WithError(err).Warn("Starting the TCPCLv4 CLA failed")
				continue
			}
			announcements = append(announcements, discovery.Announcement{
				ClaType:  "tcpclv4",
				Endpoint: c.NodeId(),
				Port:     parseClaPort(claC.Listen),
			})

		case "udp", "udpcl":
			cl := udpcl.New(claC.Listen, claC.MaxBundleSize)
			if err := c.RegisterCLA(cl); err != nil {
				log.WithError(err).Warn("Starting the UDP CLA failed")
				continue
			}
			announcements = append(announcements, discovery.Announcement{
				ClaType:  "udpcl",
				Endpoint: c.NodeId(),
				Port:     parseClaPort(claC.Listen),
			})

		case "http", "httpcl":
			server := httpcl.NewServer(claC.Listen, storeView{store: c.Store()})
			if err := c.RegisterCLA(server); err != nil {
				log.WithError(err).Warn("Starting the HTTP CLA server failed")
				continue
			}
			if err := c.RegisterCLA(httpcl.NewPushClient(0, 0)); err != nil {
				log.WithError(err).Warn("Starting the HTTP push client failed")
			}
			announcements = append(announcements, discovery.Announcement{
				ClaType:  "httpcl",
				Endpoint: c.NodeId(),
				Port:     parseClaPort(claC.Listen),
			})

		case "httppull":
			interval := time.Duration(claC.Interval) * time.Second
			cl := httpcl.NewPullClient(interval, c.PeerManager().GetAll)
			if err := c.RegisterCLA(cl); err != nil {
				log.WithError(err).Warn("Starting the HTTP pull CLA failed")
			}

		default:
			log.WithField("type", claC.Type).Warn("Skipping CLA of unknown type")
		}
	}

	// Static peers.
	for _, peerC := range conf.Peer {
		eid, err := bpv7.ParseEndpointID(peerC.Eid)
		if err != nil {
			log.WithError(err).WithField("peer", peerC.Eid).Warn("Skipping broken static peer")
			continue
		}

		peer := peers.NewPeer(eid, peerC.Address, peers.Static)
		for _, ca := range peerC.Cla {
			peer.ClaList = append(peer.ClaList, peers.CLAAddress{Name: ca.Name, Port: ca.Port})
		}

		c.PeerManager().AddOrUpdate(peer)
	}

	// Neighbour discovery.
	if !conf.Discovery.Disable && (conf.Discovery.IPv4 || conf.Discovery.IPv6) && len(announcements) > 0 {
		interval := time.Duration(conf.Discovery.Interval) * time.Second
		if interval <= 0 {
			interval = 10 * time.Second
		}

		d.discovery, err = discovery.NewManager(
			c.NodeId(), announcements, interval,
			conf.Discovery.IPv4, conf.Discovery.IPv6,
			func(announcement discovery.Announcement, address string) {
				peer := peers.NewPeer(announcement.Endpoint, address, peers.Dynamic)
				peer.ClaList = []peers.CLAAddress{{Name: announcement.ClaType, Port: announcement.Port}}
				c.PeerManager().AddOrUpdate(peer)
			})
		if err != nil {
			log.WithError(err).Warn("Starting neighbour discovery failed")
		}
	}

	// Management API.
	d.webServer = web.NewServer(c, conf.Web.Listen)
	if err := d.webServer.Start(); err != nil {
		log.WithError(err).Warn("Starting the management API failed")
	}

	return d, nil
}

// close the daemon in reverse start order.
func (d *daemon) close() {
	if d.discovery != nil {
		d.discovery.Close()
	}
	if d.webServer != nil {
		d.webServer.Stop()
	}
	d.core.Close()
}
