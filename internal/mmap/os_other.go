//go:build !unix && !windows

package mmap

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), nil, nil
}

func osAdvise([]byte, AccessPattern) error { return nil }
