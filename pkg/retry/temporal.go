package retry

import (
	sdktemporal "go.temporal.io/sdk/temporal"
)

// PermanentErrorType is the application error type used for failures that Temporal must not retry.
const PermanentErrorType = "permanent_error"

// TemporalPolicy converts cfg into the equivalent Temporal retry policy. Temporal applies no
// jitter of its own, so the spread configured here only affects the local backend.
func TemporalPolicy(cfg Config) *sdktemporal.RetryPolicy {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return &sdktemporal.RetryPolicy{
		InitialInterval:        cfg.InitialDelay,
		BackoffCoefficient:     multiplier,
		MaximumInterval:        cfg.MaxDelay,
		MaximumAttempts:        int32(cfg.Attempts()),
		NonRetryableErrorTypes: []string{PermanentErrorType},
	}
}

// ToTemporal wraps err as a Temporal application error, non-retryable when permanent.
func ToTemporal(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return sdktemporal.NewNonRetryableApplicationError(msg, PermanentErrorType, err)
	}
	return sdktemporal.NewApplicationErrorWithCause(msg, "transient_error", err)
}
