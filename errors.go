package kcore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/kcore/internal/fatal"
	"github.com/hupe1980/kcore/pagealloc"
)

var (
	// ErrOutOfMemory is returned by page allocation when no core has a free page.
	ErrOutOfMemory = pagealloc.ErrOutOfMemory

	// ErrInvalidConfig is returned by Config.Validate and Boot.
	ErrInvalidConfig = errors.New("kcore: invalid config")
)

// FatalError is the panic value of an unrecoverable kernel condition, such as
// an exhausted buffer cache or a free of a bad page address.
type FatalError = fatal.Error

// AsFatal reports whether a recovered panic value is a FatalError.
//
//	defer func() {
//	    if fe, ok := kcore.AsFatal(recover()); ok {
//	        log.Println(fe.Op, fe.Msg)
//	    }
//	}()
func AsFatal(v any) (*FatalError, bool) {
	switch e := v.(type) {
	case *FatalError:
		return e, true
	case error:
		var fe *FatalError
		if errors.As(e, &fe) {
			return fe, true
		}
	}
	return nil, false
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
