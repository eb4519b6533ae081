package gamenet

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	defaultWindow       = 64
	defaultSkipTimeout  = 200 * time.Millisecond
	defaultRTOMin       = 100 * time.Millisecond
	defaultRTOMax       = 2000 * time.Millisecond
	defaultInitialRTO   = 500 * time.Millisecond
	defaultMaxRetries   = 16
	defaultReadTimeout  = 50 * time.Millisecond
	defaultSACKWidth    = 64
	defaultPendingLimit = 1024
)

// Config enumerates the process-local tunables of an endpoint. The zero
// value of every tunable resolves to its default; a LocalPort of 0 binds an
// ephemeral port. Remote is "host:port" for a sending endpoint and empty for
// a receiver-only one.
type Config struct {
	LocalPort int
	Remote    string

	// Window is the maximum number of unacknowledged reliable sequences
	// inflight at once.
	Window int

	// SkipTimeout bounds head-of-line blocking per missing sequence.
	SkipTimeout time.Duration

	// RTO estimator clamp and initial value.
	RTOMin     time.Duration
	RTOMax     time.Duration
	InitialRTO time.Duration

	// MaxRetries is the number of retransmits of one sequence before the
	// sender abandons it.
	MaxRetries int

	// ReadTimeout is the socket read deadline and therefore the idle-tick
	// granularity of the skip policy.
	ReadTimeout time.Duration

	// SACKWidth is the number of sequences above the cumulative ack a SACK
	// bitmap covers.
	SACKWidth int

	// PendingLimit caps payloads queued while the window is full. Zero
	// resolves to the default; a negative value disables the cap.
	PendingLimit int
}

func (c Config) withDefaults() Config {
	if c.Window == 0 {
		c.Window = defaultWindow
	}
	if c.SkipTimeout == 0 {
		c.SkipTimeout = defaultSkipTimeout
	}
	if c.RTOMin == 0 {
		c.RTOMin = defaultRTOMin
	}
	if c.RTOMax == 0 {
		c.RTOMax = defaultRTOMax
	}
	if c.InitialRTO == 0 {
		c.InitialRTO = defaultInitialRTO
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.SACKWidth == 0 {
		c.SACKWidth = defaultSACKWidth
	}
	if c.PendingLimit == 0 {
		c.PendingLimit = defaultPendingLimit
	}
	return c
}

func (c Config) validate() error {
	var result *multierror.Error
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("local port %d out of range", c.LocalPort))
	}
	if c.Window < 1 || c.Window > 1<<14 {
		result = multierror.Append(result, fmt.Errorf("window %d outside [1, %d]", c.Window, 1<<14))
	}
	if c.SkipTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("negative skip timeout %v", c.SkipTimeout))
	}
	if c.RTOMin > c.RTOMax {
		result = multierror.Append(result, fmt.Errorf("RTO min %v exceeds max %v", c.RTOMin, c.RTOMax))
	}
	if c.InitialRTO < c.RTOMin || c.InitialRTO > c.RTOMax {
		result = multierror.Append(result, fmt.Errorf("initial RTO %v outside [%v, %v]", c.InitialRTO, c.RTOMin, c.RTOMax))
	}
	if c.MaxRetries < 1 {
		result = multierror.Append(result, fmt.Errorf("max retries %d below 1", c.MaxRetries))
	}
	if c.SACKWidth < 1 || c.SACKWidth%8 != 0 {
		result = multierror.Append(result, fmt.Errorf("SACK width %d must be a positive multiple of 8", c.SACKWidth))
	}
	return result.ErrorOrNil()
}
