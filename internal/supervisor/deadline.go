package supervisor

import "time"

// Deadline is a point in time after which something should happen. A
// disarmed or suppressed deadline never expires.
type Deadline struct {
	at         time.Time
	armed      bool
	suppressed bool
}

// Arm sets the deadline to now+d and clears suppression.
func (d *Deadline) Arm(now time.Time, dur time.Duration) {
	d.at = now.Add(dur)
	d.armed = true
	d.suppressed = false
}

// Disarm cancels the deadline.
func (d *Deadline) Disarm() {
	*d = Deadline{}
}

// Suppress holds the deadline off indefinitely until Resume.
func (d *Deadline) Suppress() {
	if d.armed {
		d.suppressed = true
	}
}

// Resume lifts suppression and re-arms the deadline for the full duration
// measured from now. It has no effect on a disarmed deadline.
func (d *Deadline) Resume(now time.Time, full time.Duration) {
	if !d.armed {
		return
	}
	d.Arm(now, full)
}

// Armed reports whether the deadline is set.
func (d *Deadline) Armed() bool {
	return d.armed
}

// Suppressed reports whether the deadline is held off.
func (d *Deadline) Suppressed() bool {
	return d.suppressed
}

// IsExpired reports whether now is at or past an armed, unsuppressed
// deadline.
func (d *Deadline) IsExpired(now time.Time) bool {
	if !d.armed || d.suppressed {
		return false
	}
	return !now.Before(d.at)
}

// Remaining returns the time left, zero when expired, disarmed or
// suppressed.
func (d *Deadline) Remaining(now time.Time) time.Duration {
	if !d.armed || d.suppressed {
		return 0
	}
	if r := d.at.Sub(now); r > 0 {
		return r
	}
	return 0
}
