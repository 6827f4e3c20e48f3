package retry

import "time"

// Job-class policies. Every class backs off exponentially (x2) with jitter.
var (
	MatchProcessing = Config{
		MaxRetries:    5,
		InitialDelay:  30 * time.Second,
		MaxDelay:      300 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}

	TimelineProcessing = Config{
		MaxRetries:    3,
		InitialDelay:  20 * time.Second,
		MaxDelay:      180 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}

	PlayerSync = Config{
		MaxRetries:    3,
		InitialDelay:  60 * time.Second,
		MaxDelay:      600 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}

	Recovery = Config{
		MaxRetries:    2,
		InitialDelay:  120 * time.Second,
		MaxDelay:      600 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}

	Maintenance = Config{
		MaxRetries:    1,
		InitialDelay:  300 * time.Second,
		MaxDelay:      300 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
)
