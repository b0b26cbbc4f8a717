// SPDX-FileCopyrightText: 2023 The dtn7-gold authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-gold/pkg/bpv7"
)

// sendStatusReport builds an administrative-record bundle describing the
// referenced bundle's fate and hands it to the processing pipeline. Status
// reports are only created when enabled and never in response to another
// administrative record.
func (c *Core) sendStatusReport(b *bpv7.Bundle, status bpv7.StatusInformationPos, reason bpv7.StatusReportReason) {
	if !c.generateStatusReports {
		return
	}

	if b.IsAdministrativeRecord() {
		return
	}

	reportTo := b.PrimaryBlock.ReportTo
	if reportTo.IsNone() || c.IsLocalEndpoint(reportTo) {
		return
	}

	logger := log.WithFields(log.Fields{
		"bundle": b.ID(),
		"status": status,
		"reason": reason,
	})
	logger.Info("Sending status report")

	report := bpv7.NewStatusReport(*b, status, reason, bpv7.DtnTimeNow())
	payload, err := bpv7.AdministrativeRecordToCbor(report)
	if err != nil {
		logger.WithError(err).Warn("Serializing status report failed")
		return
	}

	outBundle, err := bpv7.Builder().
		BundleCtrlFlags(bpv7.AdministrativeRecordPayload).
		Source(c.nodeId).
		Destination(reportTo).
		CreationTimestampNow().
		Lifetime("60m").
		Canonical(payload).
		Build()
	if err != nil {
		logger.WithError(err).Warn("Building status report bundle failed")
		return
	}

	// Fully recursive into the pipeline, in its own goroutine to not deadlock
	// the running processing step.
	go func() {
		if err := c.processor.Transmit(&outBundle); err != nil {
			logger.WithError(err).Warn("Transmitting status report failed")
		}
	}()
}
