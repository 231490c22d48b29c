package interactor

import (
	"fmt"
	"strings"
)

// CacheStrategy decides how an Interactor combines the cache and the network.
type CacheStrategy int

const (
	// CacheFirst serves a cache hit without touching the network; a miss falls
	// through to the remote call, whose result is written back.
	CacheFirst CacheStrategy = iota
	// RemoteFirst calls the network and falls back to the cache only when the call fails.
	RemoteFirst
	// RemoteOnly always calls the network. Successful results are still written
	// back, so it doubles as a forced refresh.
	RemoteOnly
	// CacheOnly never calls the network. A miss completes with NotAvailable.
	CacheOnly
)

func (s CacheStrategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case RemoteFirst:
		return "remote-first"
	case RemoteOnly:
		return "remote-only"
	case CacheOnly:
		return "cache-only"
	default:
		return fmt.Sprintf("CacheStrategy(%d)", int(s))
	}
}

// ParseCacheStrategy accepts the String form of a strategy, case-insensitively.
func ParseCacheStrategy(s string) (CacheStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cache-first":
		return CacheFirst, nil
	case "remote-first":
		return RemoteFirst, nil
	case "remote-only":
		return RemoteOnly, nil
	case "cache-only":
		return CacheOnly, nil
	default:
		return CacheFirst, fmt.Errorf("unknown cache strategy %q", s)
	}
}

// UnmarshalText lets config loaders decode strategies from strings.
func (s *CacheStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseCacheStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
