// Package schedtz centralizes the wall-clock zone used for appointment
// scheduling. Slot arithmetic happens in the practice's local zone so that
// the spacing rule matches what lawyers see on their calendars.
package schedtz

import (
	"fmt"
	"time"
)

// DefaultZone is the practice's operating timezone.
const DefaultZone = "Asia/Kathmandu"

// Zone wraps a time.Location and is the only way the scheduling code
// converts between stored UTC instants and local wall-clock times.
type Zone struct {
	loc *time.Location
}

// Load resolves the named IANA zone. An empty name falls back to DefaultZone.
func Load(name string) (Zone, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load scheduling zone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

// MustLoad is Load for tests and static initialization.
func MustLoad(name string) Zone {
	z, err := Load(name)
	if err != nil {
		panic(err)
	}
	return z
}

// Name returns the IANA name of the zone.
func (z Zone) Name() string { return z.loc.String() }

// In converts an instant to the scheduling zone without changing the
// instant itself.
func (z Zone) In(t time.Time) time.Time { return t.In(z.loc) }

// Now returns the current time in the scheduling zone.
func (z Zone) Now() time.Time { return time.Now().In(z.loc) }

// ParseRFC3339 parses the client-supplied timestamp. Offset-qualified inputs
// keep their instant; the result is converted to the scheduling zone.
func (z Zone) ParseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.In(z.loc), nil
}
