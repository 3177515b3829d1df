// Package sysmem reports the operating system's physical memory figures.
//
// The free/total figures are only available where the platform exposes
// physical and available page counts together with the page size. On other
// platforms PercentSupported is false and the queries return ErrUnsupported.
package sysmem

import (
	"errors"

	"github.com/dustin/go-humanize"
)

// ErrUnsupported is returned on platforms without physical page counters
var ErrUnsupported = errors.New("physical memory query not supported on this platform")

// PercentSupported reports whether FreeBytes and TotalBytes are available,
// which is what "N%" size tokens depend on.
const PercentSupported = percentSupported

// FreeBytes returns the physical memory currently available, excluding swap.
func FreeBytes() (uint64, error) {
	return freeBytes()
}

// TotalBytes returns the installed physical memory.
func TotalBytes() (uint64, error) {
	return totalBytes()
}

// AddressSpaceAvailable reports how many more bytes this process may map
// before hitting its RLIMIT_AS soft limit. ok is false when no finite limit
// applies or the limit cannot be read. Where the current mapping size is
// unknown the whole limit is reported.
func AddressSpaceAvailable() (available uint64, ok bool) {
	limit, limited, err := addressSpaceRlimit()
	if err != nil || !limited {
		return 0, false
	}
	used, err := mappedBytes()
	if err != nil {
		used = 0
	}
	if used >= limit {
		return 0, true
	}
	return limit - used, true
}

// addressSpaceLimit formats RLIMIT_AS for reports
func addressSpaceLimit() (string, error) {
	limit, limited, err := addressSpaceRlimit()
	if err != nil {
		return "", err
	}
	if !limited {
		return "unlimited", nil
	}
	return humanize.IBytes(limit), nil
}
