//go:build !linux && !darwin

package sysmem

func addressSpaceRlimit() (uint64, bool, error) {
	return 0, false, ErrUnsupported
}
