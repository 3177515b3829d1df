//go:build linux || openbsd

package sysmem

import (
	"fmt"

	"github.com/tklauser/go-sysconf"
)

const percentSupported = true

func freeBytes() (uint64, error) {
	return pageBytes(sysconf.SC_AVPHYS_PAGES, "SC_AVPHYS_PAGES")
}

func totalBytes() (uint64, error) {
	return pageBytes(sysconf.SC_PHYS_PAGES, "SC_PHYS_PAGES")
}

// pageBytes multiplies a page count reported by sysconf(3) by the page size
func pageBytes(name int, label string) (uint64, error) {
	pages, err := sysconf.Sysconf(name)
	if err != nil {
		return 0, fmt.Errorf("sysconf %s: %w", label, err)
	}
	pageSize, err := sysconf.Sysconf(sysconf.SC_PAGE_SIZE)
	if err != nil {
		return 0, fmt.Errorf("sysconf SC_PAGE_SIZE: %w", err)
	}
	if pages < 0 || pageSize <= 0 {
		return 0, fmt.Errorf("sysconf %s: unexpected value %d pages of %d bytes", label, pages, pageSize)
	}
	return uint64(pages) * uint64(pageSize), nil
}
