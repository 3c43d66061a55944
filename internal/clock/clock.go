// Package clock provides wall-clock timestamps and the external
// reference-clock query used to time-sync recorded streams.
package clock

import (
	"log"
	"net"
	"os"
	"time"

	"github.com/beevik/ntp"
)

// Sync modes recorded in a stream's descriptor.
const (
	ModeNTP = "ntp" // reference reading obtained from an external clock
	ModeSys = "sys" // no reference available, local clock used as its own
)

// DefaultTimeout bounds the reference query during recorder startup.
const DefaultTimeout = 1 * time.Second

// DefaultNTPHost is the pool host queried when none is configured.
const DefaultNTPHost = "0.pool.ntp.org"

// Reading is one successful reference-clock query: the reference value
// and the local wall clock observed at the midpoint of the exchange.
type Reading struct {
	Local float64
	Ref   float64
}

// Source queries an external reference clock within a timeout. A failed
// query returns the error; it is the caller's decision to fall back to
// the local clock.
type Source interface {
	Query(timeout time.Duration) (Reading, error)
}

// NTPSource queries an NTP pool host via a single SNTP exchange.
type NTPSource struct {
	Host string
}

// Query performs the SNTP exchange. The local reading is the midpoint
// of the wall-clock times sampled around the request.
func (s NTPSource) Query(timeout time.Duration) (Reading, error) {
	host := s.Host
	if host == "" {
		host = DefaultNTPHost
	}

	t1 := Timestamp()
	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
	t2 := Timestamp()
	if err != nil {
		return Reading{}, err
	}
	if err := resp.Validate(); err != nil {
		return Reading{}, err
	}

	return Reading{
		Local: (t1 + t2) / 2.0,
		Ref:   float64(resp.Time.UnixNano()) / 1e9,
	}, nil
}

// SyncPoint is the clock context a stream is recorded under.
type SyncPoint struct {
	Local float64
	Ref   float64
	Mode  string
}

// Establish queries src within timeout and falls back to the local
// clock (mode "sys", local == ref) when src is nil or the query fails.
func Establish(src Source, timeout time.Duration) SyncPoint {
	if src != nil {
		r, err := src.Query(timeout)
		if err == nil {
			return SyncPoint{Local: r.Local, Ref: r.Ref, Mode: ModeNTP}
		}
		log.Printf("clock: reference query failed, using system time: %v", err)
	}

	now := Timestamp()
	return SyncPoint{Local: now, Ref: now, Mode: ModeSys}
}

// Timestamp returns the current wall-clock time as float seconds since
// the Unix epoch.
func Timestamp() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Hostname returns the local hostname, or "localhost" when it cannot
// be determined.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

// HostIP returns the first non-loopback IPv4 address of this host.
// IPv6 addresses are never returned; the descriptor format is
// colon-delimited.
func HostIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
