package bcache

import "github.com/hupe1980/kcore/internal/sleeplock"

// Handle is one hold of a buffer's content lock, returned by Get and Read.
// It is invalid after Release.
type Handle struct {
	cache  *Cache
	idx    int
	ticket sleeplock.Ticket
}

func (h *Handle) buf() *Buf { return &h.cache.bufs[h.idx] }

// Data returns the block contents. The slice may be read and written until
// the handle is released.
func (h *Handle) Data() []byte { return h.buf().data[:] }

// Dev returns the device number.
func (h *Handle) Dev() uint32 { return h.buf().dev }

// BlockNo returns the block number.
func (h *Handle) BlockNo() uint32 { return h.buf().blockno }

// Valid reports whether Data holds the block's disk contents.
func (h *Handle) Valid() bool { return h.buf().valid }

// Index returns the pool slot of the buffer.
func (h *Handle) Index() int { return h.idx }

// Held reports whether the handle still holds the content lock.
func (h *Handle) Held() bool { return h.buf().lock.Holding(h.ticket) }
