package disk

import (
	"context"

	"github.com/hupe1980/kcore/resource"
)

// RateLimited charges every transfer of the wrapped driver to a resource
// controller: one in-flight slot and len(req.Data) bytes of IO budget.
type RateLimited struct {
	inner Driver
	rc    *resource.Controller
}

// NewRateLimited wraps inner. A nil controller imposes no limits.
func NewRateLimited(inner Driver, rc *resource.Controller) *RateLimited {
	return &RateLimited{inner: inner, rc: rc}
}

// Transfer implements Driver. It blocks until the controller admits the
// transfer or ctx is done.
func (d *RateLimited) Transfer(ctx context.Context, req *Request, write bool) error {
	if err := d.rc.AcquireTransfer(ctx, len(req.Data)); err != nil {
		return err
	}
	defer d.rc.ReleaseTransfer()

	return d.inner.Transfer(ctx, req, write)
}
