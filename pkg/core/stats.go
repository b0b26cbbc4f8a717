// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import "sync/atomic"

// Statistics are the node's bundle counters. All fields are updated atomically.
type Statistics struct {
	Incoming   atomic.Uint64
	Duplicates atomic.Uint64
	Outgoing   atomic.Uint64
	Delivered  atomic.Uint64
	Failed     atomic.Uint64
	Broken     atomic.Uint64
}

// Snapshot of all counters plus the current store size.
func (s *Statistics) Snapshot(stored uint64) map[string]uint64 {
	return map[string]uint64{
		"incoming":   s.Incoming.Load(),
		"duplicates": s.Duplicates.Load(),
		"outgoing":   s.Outgoing.Load(),
		"delivered":  s.Delivered.Load(),
		"failed":     s.Failed.Load(),
		"broken":     s.Broken.Load(),
		"stored":     stored,
	}
}
