package l2products

import "time"

// permanentEnd is the stand-in expiration for NOTAMs whose end of
// validity is PERM. Far enough out to sort after everything real.
var permanentEnd = time.Date(2038, 1, 1, 0, 0, 0, 0, time.UTC)

// Config holds the expiration policy knobs for product synthesis. The
// durations follow DO-358B table C-1 where the standard gives one.
type Config struct {
	// METARExpiration runs from the observation time.
	METARExpiration time.Duration

	// UnavailableExpiration is for FIS-B product unavailable notices,
	// measured from reception.
	UnavailableExpiration time.Duration

	// ServiceStatusExpiration covers one TIS-B service status sweep.
	ServiceStatusExpiration time.Duration

	// Image product lifetimes, measured from the product event time.
	RegionalNEXRADExpiration time.Duration
	CONUSNEXRADExpiration    time.Duration
	TurbulenceExpiration     time.Duration
	IcingExpiration          time.Duration
	CloudTopsExpiration      time.Duration
	LightningExpiration      time.Duration

	// PIREPExpiration runs from the report time when
	// PIREPExpireFromReportTime is set, otherwise from reception. The
	// report time is the better anchor: stale PIREPs keep getting
	// rebroadcast long after the observation.
	PIREPExpiration           time.Duration
	PIREPExpireFromReportTime bool

	// TWGODefaultExpiration applies to TWGO reports that carry no
	// usable stop time. The standard requires retransmission for 60
	// minutes, so one minute past that.
	TWGODefaultExpiration time.Duration

	// BypassTWGOSmartExpiration ignores stop times and NOTAM validity
	// and always uses the default. Test data needs this.
	BypassTWGOSmartExpiration bool

	// CancelExpiration is how long a cancellation message itself stays
	// current after last reception.
	CancelExpiration time.Duration
}

// DefaultConfig returns the standard expiration policy.
func DefaultConfig() Config {
	return Config{
		METARExpiration:           120 * time.Minute,
		UnavailableExpiration:     20 * time.Minute,
		ServiceStatusExpiration:   40 * time.Second,
		RegionalNEXRADExpiration:  75 * time.Minute,
		CONUSNEXRADExpiration:     75 * time.Minute,
		TurbulenceExpiration:      105 * time.Minute,
		IcingExpiration:           105 * time.Minute,
		CloudTopsExpiration:       105 * time.Minute,
		LightningExpiration:       75 * time.Minute,
		PIREPExpiration:           120 * time.Minute,
		PIREPExpireFromReportTime: true,
		TWGODefaultExpiration:     61 * time.Minute,
		CancelExpiration:          60 * time.Minute,
	}
}
