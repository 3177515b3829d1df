//go:build !linux

package sysmem

func mappedBytes() (uint64, error) {
	return 0, ErrUnsupported
}
