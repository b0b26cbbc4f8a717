// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Cron runs registered jobs periodically until it is stopped.
type Cron struct {
	mutex sync.Mutex
	jobs  map[string]chan struct{}

	wg      sync.WaitGroup
	stopped bool
}

// NewCron creates an empty Cron.
func NewCron() *Cron {
	return &Cron{
		jobs: make(map[string]chan struct{}),
	}
}

// Register a named job to be run every interval. The first run happens one
// interval after registration.
func (c *Cron) Register(name string, fn func(), interval time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopped {
		return fmt.Errorf("cron is stopped")
	}
	if _, exists := c.jobs[name]; exists {
		return fmt.Errorf("cron job %s is already registered", name)
	}

	stop := make(chan struct{})
	c.jobs[name] = stop

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	log.WithFields(log.Fields{
		"job":      name,
		"interval": interval,
	}).Debug("Registered cron job")

	return nil
}

// Unregister a job by its name; unknown names are a no-op.
func (c *Cron) Unregister(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if stop, exists := c.jobs[name]; exists {
		close(stop)
		delete(c.jobs, name)
	}
}

// Stop all jobs and await their termination.
func (c *Cron) Stop() {
	c.mutex.Lock()
	for name, stop := range c.jobs {
		close(stop)
		delete(c.jobs, name)
	}
	c.stopped = true
	c.mutex.Unlock()

	c.wg.Wait()
}
