// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// dtnd is a delay-tolerant networking daemon: a Bundle Protocol Version 7
// agent which stores, forwards and delivers bundles.
package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
)

// waitSigint blocks until a SIGINT arrives.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signal.Notify(signalSyn, os.Interrupt)

	<-signalSyn
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	d, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Starting the daemon failed")
	}

	waitSigint()
	log.Info("Shutting down..")

	d.close()
}
