// Package pool recycles copy buffers across copy tasks.
package pool

import (
	"fmt"
	"math/bits"
	"sync"
)

// CopyBufferPool hands out copy buffers sized to the file being copied.
// Small files get small buffers; anything at or above the largest bucket
// shares the largest bucket, since io.CopyBuffer streams in chunks.
type CopyBufferPool struct {
	minExp  int
	maxExp  int
	buckets []sync.Pool
}

// NewCopyBufferPool creates a pool with power-of-two buckets between minSize and maxSize.
func NewCopyBufferPool(minSize, maxSize int64) *CopyBufferPool {
	if !isPowerOfTwo(minSize) || !isPowerOfTwo(maxSize) {
		panic(fmt.Sprintf("buffer bounds %d..%d must be powers of two", minSize, maxSize))
	}
	if maxSize < minSize {
		panic("maxSize must not be smaller than minSize")
	}

	p := &CopyBufferPool{
		minExp: bits.TrailingZeros64(uint64(minSize)),
		maxExp: bits.TrailingZeros64(uint64(maxSize)),
	}
	p.buckets = make([]sync.Pool, p.maxExp+1)
	for i := p.minExp; i <= p.maxExp; i++ {
		size := 1 << i
		p.buckets[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return p
}

// bucket returns the exponent of the bucket serving fileSize.
func (p *CopyBufferPool) bucket(fileSize int64) int {
	if fileSize <= 1 {
		return p.minExp
	}
	idx := bits.Len64(uint64(fileSize - 1))
	return max(p.minExp, min(idx, p.maxExp))
}

// Get returns a buffer suitable for copying a file of fileSize bytes.
// The buffer is never empty.
func (p *CopyBufferPool) Get(fileSize int64) *[]byte {
	buf := p.buckets[p.bucket(fileSize)].Get().(*[]byte)
	*buf = (*buf)[:cap(*buf)]
	return buf
}

// Put returns a buffer obtained from Get. Foreign buffers are dropped.
func (p *CopyBufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	c := int64(cap(*buf))
	if !isPowerOfTwo(c) {
		return
	}
	idx := bits.TrailingZeros64(uint64(c))
	if idx < p.minExp || idx > p.maxExp {
		return
	}
	*buf = (*buf)[:c]
	p.buckets[idx].Put(buf)
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && (n&(n-1)) == 0
}
