//go:build !linux && !darwin && !freebsd && !windows

package diskinfo

func lookup(string) (*Info, error) {
	return nil, ErrUnsupported
}
