//go:build !linux && !openbsd

package sysmem

const percentSupported = false

func freeBytes() (uint64, error) {
	return 0, ErrUnsupported
}

func totalBytes() (uint64, error) {
	return 0, ErrUnsupported
}
