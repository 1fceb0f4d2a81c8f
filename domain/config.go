package domain

import "time"

type Config struct {
	Name      string
	ContactID string
	Port      int

	// zmq endpoints
	ContactEndpoint   string
	PublicPubEndpoint string
	PublicSubs        []string
	BridgeReqEndpoint string
	BridgeSubEndpoint string

	// Counterparty auth-address verification is mandatory at or above
	// this amount (minor asset units). Zero disables the gate.
	VerifyThresholdXBT int64

	JournalPath       string
	JournalMigrations string

	Timeouts TimeoutConfig

	Verbose  bool
	LogLevel string
}

type TimeoutConfig struct {
	PublicRequest time.Duration
	Negotiation   time.Duration
	Payin         time.Duration
	Payout        time.Duration
	LocalDelay    time.Duration
	StartOtc      time.Duration
}

func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		PublicRequest: PublicRequestTimeout,
		Negotiation:   NegotiationTimeout,
		Payin:         PayinTimeout,
		Payout:        PayoutTimeout,
		LocalDelay:    LocalTimeoutDelay,
		StartOtc:      StartOtcTimeout,
	}
}
