// Package mempool keeps size-classed buffers for the per-pixel masks and
// accumulators used while estimating tilt, so parallel workers do not
// allocate a fresh mask for every candidate angle.
package mempool

import "sync"

const step = 1024

// sizeClass rounds n up to the next multiple of 1024.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

// slicePool is a set of sync.Pools keyed by size class.
type slicePool[T any] struct {
	pools sync.Map // size class -> *sync.Pool
}

func (sp *slicePool[T]) pool(cls int) *sync.Pool {
	p, _ := sp.pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// get returns a zeroed slice of length n.
func (sp *slicePool[T]) get(n int) []T {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	buf, ok := sp.pool(cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

func (sp *slicePool[T]) put(buf []T) {
	if cap(buf) == 0 {
		return
	}
	// Buffers that do not fill a class exactly belong to the class below.
	cls := cap(buf) / step * step
	if cls < step {
		return
	}
	sp.pool(cls).Put(buf[:cap(buf)]) //nolint:staticcheck // slices are small headers
}

var (
	boolPool    slicePool[bool]
	float64Pool slicePool[float64]
	int32Pool   slicePool[int32]
)

// GetBool returns a zeroed []bool of length n. Return it with PutBool.
func GetBool(n int) []bool { return boolPool.get(n) }

// PutBool returns a buffer obtained from GetBool. nil is ignored.
func PutBool(buf []bool) { boolPool.put(buf) }

// GetFloat64 returns a zeroed []float64 of length n. Return it with PutFloat64.
func GetFloat64(n int) []float64 { return float64Pool.get(n) }

// PutFloat64 returns a buffer obtained from GetFloat64. nil is ignored.
func PutFloat64(buf []float64) { float64Pool.put(buf) }

// GetInt32 returns a zeroed []int32 of length n, used for vote accumulators.
func GetInt32(n int) []int32 { return int32Pool.get(n) }

// PutInt32 returns a buffer obtained from GetInt32. nil is ignored.
func PutInt32(buf []int32) { int32Pool.put(buf) }
