// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
	"github.com/dtn7/dtn7-gold/pkg/peers"
)

// Route is one static routing rule: bundles whose source and destination
// match the glob patterns go via the named peer.
type Route struct {
	Index       int
	Source      string
	Destination string
	Via         string

	sourceRe      *regexp.Regexp
	destinationRe *regexp.Regexp
	viaEid        bpv7.EndpointID
}

// routesFile is the TOML layout of a static routing table.
type routesFile struct {
	Route []Route
}

// globToRegexp translates a glob pattern with * and ? into an anchored regexp.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString("$")
	return regexp.Compile(b.String())
}

// compile the route's patterns and via endpoint.
func (route *Route) compile() (err error) {
	if route.sourceRe, err = globToRegexp(route.Source); err != nil {
		return fmt.Errorf("route #%d: source pattern: %w", route.Index, err)
	}
	if route.destinationRe, err = globToRegexp(route.Destination); err != nil {
		return fmt.Errorf("route #%d: destination pattern: %w", route.Index, err)
	}
	if route.viaEid, err = bpv7.ParseEndpointID(route.Via); err != nil {
		return fmt.Errorf("route #%d: via endpoint: %w", route.Index, err)
	}
	return nil
}

// Static routes bundles along an ordered rule table loaded from a TOML file.
// The file is reloadable, both through a ReloadConfig notification and
// automatically when the file changes on disk.
type Static struct {
	manager *peers.Manager
	env     Environment

	routesPath string

	mutex  sync.RWMutex
	routes []Route

	watcher *fsnotify.Watcher

	stopSyn chan struct{}
	wg      sync.WaitGroup
}

// NewStatic routing Agent with the path of its routing table.
func NewStatic(routesPath string) *Static {
	return &Static{
		routesPath: routesPath,
		stopSyn:    make(chan struct{}),
	}
}

func (s *Static) String() string {
	return "static"
}

// Configure hands over the peer manager and the node view.
func (s *Static) Configure(manager *peers.Manager, env Environment) {
	s.manager = manager
	s.env = env
}

// Start loads the routing table and begins watching it.
func (s *Static) Start() error {
	if err := s.reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("Static routing: creating a file watcher failed, reload by notification only")
		return nil
	}
	if err := watcher.Add(s.routesPath); err != nil {
		log.WithError(err).WithField("file", s.routesPath).Warn("Static routing: watching the routes file failed")
		_ = watcher.Close()
		return nil
	}

	s.watcher = watcher
	s.wg.Add(1)
	go s.watch()

	return nil
}

func (s *Static) watch() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopSyn:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := s.reload(); err != nil {
					log.WithError(err).Warn("Static routing: reloading the routes file failed")
				}
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Static routing: file watcher erred")
		}
	}
}

// reload parses the routing table; a broken file leaves the old table in place.
func (s *Static) reload() error {
	var file routesFile
	if _, err := toml.DecodeFile(s.routesPath, &file); err != nil {
		return fmt.Errorf("parsing routes file %s failed: %w", s.routesPath, err)
	}

	for i := range file.Route {
		if err := file.Route[i].compile(); err != nil {
			return err
		}
	}

	sort.SliceStable(file.Route, func(i, j int) bool {
		return file.Route[i].Index < file.Route[j].Index
	})

	s.mutex.Lock()
	s.routes = file.Route
	s.mutex.Unlock()

	log.WithFields(log.Fields{
		"file":   s.routesPath,
		"routes": len(file.Route),
	}).Info("Static routing table loaded")

	return nil
}

// Stop the watcher and release the Environment.
func (s *Static) Stop() {
	close(s.stopSyn)
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.wg.Wait()
	s.env = nil
}

// NextHops walks the rule table in ascending index order. The first rule
// matching both source and destination yields its via peer, which must be a
// current peer with at least one CLA; there is no fallback.
func (s *Static) NextHops(b *bpv7.Bundle) Decision {
	if s.env.IsLocalEndpoint(b.PrimaryBlock.Destination) {
		return localDecision(b)
	}

	decision := Decision{BundleId: b.ID().String()}

	source := b.PrimaryBlock.SourceNode.String()
	destination := b.PrimaryBlock.Destination.String()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, route := range s.routes {
		if !route.sourceRe.MatchString(source) || !route.destinationRe.MatchString(destination) {
			continue
		}

		if peer, known := s.manager.GetPeer(route.viaEid); known && hasCla(peer) {
			decision.NextHops = []peers.Peer{peer}
		}

		log.WithFields(log.Fields{
			"bundle": decision.BundleId,
			"route":  route.Index,
			"via":    route.Via,
			"known":  len(decision.NextHops) == 1,
		}).Debug("Static routing matched a rule")

		return decision
	}

	return decision
}

// Notify handles the reload command; peer events are irrelevant for Static.
func (s *Static) Notify(n Notification) {
	if n.Type == ReloadConfig {
		if err := s.reload(); err != nil {
			log.WithError(err).Warn("Static routing: reloading the routes file failed")
		}
	}
}

// State exposes the rule table.
func (s *Static) State() map[string]string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	state := map[string]string{"algorithm": s.String()}
	for _, route := range s.routes {
		state[fmt.Sprintf("route#%d", route.Index)] =
			fmt.Sprintf("%s -> %s via %s", route.Source, route.Destination, route.Via)
	}
	return state
}
