// Package geo resolves client IP addresses to locations for session
// origins and security events.
package geo

import (
	"errors"
	"fmt"
	"net"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/oschwald/geoip2-golang"
)

// ErrInvalidIP is returned for strings that are not IP addresses.
var ErrInvalidIP = errors.New("geo: invalid IP address")

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// MaxMind resolves addresses against a GeoLite2 or GeoIP2 City database.
// It is safe for concurrent use.
type MaxMind struct {
	db   cityReader
	lang string
}

// OpenMaxMind memory-maps the City database at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", path, err)
	}
	return &MaxMind{db: db, lang: "en"}, nil
}

// Locate implements goGuard.GeoResolver. Private, loopback and link-local
// addresses resolve to an empty location without a database lookup.
func (m *MaxMind) Locate(ip string) (goGuard.Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return goGuard.Location{}, ErrInvalidIP
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() || parsed.IsUnspecified() {
		return goGuard.Location{}, nil
	}

	record, err := m.db.City(parsed)
	if err != nil {
		return goGuard.Location{}, fmt.Errorf("geo: lookup: %w", err)
	}

	return goGuard.Location{
		Country:  record.Country.IsoCode,
		City:     record.City.Names[m.lang],
		Timezone: record.Location.TimeZone,
	}, nil
}

// Close unmaps the database.
func (m *MaxMind) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}
