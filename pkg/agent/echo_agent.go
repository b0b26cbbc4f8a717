// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// SubmitFunc hands a locally created bundle back to the node for transmission.
type SubmitFunc func(b *bpv7.Bundle) error

// EchoAgent is a push delegate answering every incoming bundle with a new
// bundle carrying the same payload back to the report-to endpoint.
type EchoAgent struct {
	endpoint bpv7.EndpointID
	submit   SubmitFunc
}

// NewEchoAgent answering from the given endpoint.
func NewEchoAgent(endpoint bpv7.EndpointID, submit SubmitFunc) *EchoAgent {
	return &EchoAgent{
		endpoint: endpoint,
		submit:   submit,
	}
}

// Endpoint this EchoAgent answers from.
func (e *EchoAgent) Endpoint() bpv7.EndpointID {
	return e.endpoint
}

// Deliver is the DeliveryFunc: build and submit the response bundle.
func (e *EchoAgent) Deliver(b *bpv7.Bundle) {
	if b.IsAdministrativeRecord() {
		return
	}

	payload, err := b.PayloadData()
	if err != nil {
		log.WithField("bundle", b.ID()).WithError(err).Warn("Echo request carries no payload")
		return
	}

	response, err := bpv7.Builder().
		Source(e.endpoint).
		Destination(b.PrimaryBlock.ReportTo).
		CreationTimestampNow().
		Lifetime(b.PrimaryBlock.Lifetime).
		HopCountBlock(64).
		PayloadBlock(payload).
		Build()
	if err != nil {
		log.WithField("bundle", b.ID()).WithError(err).Warn("Building echo response failed")
		return
	}

	log.WithFields(log.Fields{
		"request":  b.ID(),
		"response": response.ID(),
	}).Debug("Echoing bundle")

	if err := e.submit(&response); err != nil {
		log.WithField("bundle", response.ID()).WithError(err).Warn("Submitting echo response failed")
	}
}
