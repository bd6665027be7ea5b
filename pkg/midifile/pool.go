package midifile

import "sync/atomic"

// Pool hands out track buffers
type Pool interface {
	Get(n int) ([]byte, error)
	Put(b []byte)
}

// BudgetPool allocates from the heap but refuses to exceed a fixed byte budget,
// standing in for the board's SRAM
type BudgetPool struct {
	budget int64
	inUse  atomic.Int64
}

// NewBudgetPool creates a pool; budget <= 0 means unlimited
func NewBudgetPool(budget int64) *BudgetPool {
	return &BudgetPool{budget: budget}
}

// Get allocates n bytes
func (p *BudgetPool) Get(n int) ([]byte, error) {
	for {
		cur := p.inUse.Load()
		next := cur + int64(n)
		if p.budget > 0 && next > p.budget {
			return nil, malformed(ErrAllocationFailure, "need %d bytes, %d of %d in use", n, cur, p.budget)
		}
		if p.inUse.CompareAndSwap(cur, next) {
			return make([]byte, n), nil
		}
	}
}

// Put returns b to the budget
func (p *BudgetPool) Put(b []byte) {
	p.inUse.Add(-int64(len(b)))
}

// InUse reports the bytes currently handed out
func (p *BudgetPool) InUse() int64 {
	return p.inUse.Load()
}
