// Package telemetry registers the coordinator's runtime counters and
// gauges against github.com/rcrowley/go-metrics's default registry, the
// same library and NewRegistered*/Update idiom used by the teacher's
// datasync/chaindatafetcher package for per-request-type insertion
// timing and retry gauges.
package telemetry

import "github.com/rcrowley/go-metrics"

var (
	// EpochDuration records wall-clock epoch length in milliseconds.
	EpochDuration = metrics.NewRegisteredGauge("epoch/duration_ms", nil)

	// SubmissionsAccepted counts solutions that passed §4.E validation.
	SubmissionsAccepted = metrics.NewRegisteredCounter("submissions/accepted", nil)

	// SubmissionsRejected counts solutions dropped at any §4.E step.
	SubmissionsRejected = metrics.NewRegisteredCounter("submissions/rejected", nil)

	// PriorityFeeLevel mirrors the current shared priority fee cell.
	PriorityFeeLevel = metrics.NewRegisteredGauge("fee/priority_level", nil)

	// DispatchCount counts work packets sent to clients, across all
	// dispatcher ticks.
	DispatchCount = metrics.NewRegisteredCounter("dispatch/count", nil)

	// SubmitAttempts counts individual mine-transaction send attempts,
	// including retries.
	SubmitAttempts = metrics.NewRegisteredCounter("submit/attempts", nil)

	// SubmitAbandoned counts epochs abandoned after exhausting the
	// §4.F retry budget.
	SubmitAbandoned = metrics.NewRegisteredCounter("submit/abandoned", nil)

	// RewardDust accumulates tokens lost to flooring during distribution.
	RewardDust = metrics.NewRegisteredCounter("reward/dust", nil)

	// ClaimsRejectedCooldown counts /claim requests refused for arriving
	// before the 30-minute cooldown elapsed.
	ClaimsRejectedCooldown = metrics.NewRegisteredCounter("http/claims_rejected_cooldown", nil)

	// SignupsWhitelisted counts signups admitted via the whitelist bypass
	// rather than an on-chain transfer.
	SignupsWhitelisted = metrics.NewRegisteredCounter("http/signups_whitelisted", nil)
)
