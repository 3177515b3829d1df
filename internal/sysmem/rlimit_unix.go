//go:build linux || darwin

package sysmem

import (
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// addressSpaceRlimit returns the soft RLIMIT_AS and whether it is finite
func addressSpaceRlimit() (uint64, bool, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &rlim); err != nil {
		return 0, false, fmt.Errorf("getrlimit RLIMIT_AS: %w", err)
	}

	// RLIM_INFINITY is ^0 on linux and MaxInt64 on darwin
	if rlim.Cur == math.MaxUint64 || rlim.Cur == math.MaxInt64 {
		return 0, false, nil
	}
	return rlim.Cur, true, nil
}
