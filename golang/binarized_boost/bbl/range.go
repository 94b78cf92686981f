package bbl

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

//DefaultBlockSize is the number of rows processed by one task of a parallel pass.
const DefaultBlockSize = 1 << 15

//Range is an iterator over half interval [begin, end) with the step step.
type Range struct {
	begin, end, step, pos int
}

//NewRange initializes a new iterator over a half interval.
func NewRange(start, end, step int) *Range {
	return &Range{start, end, step, start}
}

//GetNext returns the next element from the iterator and moves iterator to the next position.
func (r *Range) GetNext() int {
	val := r.pos
	r.pos += r.step
	return val
}

//HasNext checks whether there are more values in the iterator.
func (r *Range) HasNext() bool {
	if r.step > 0 {
		return r.pos < r.end
	}
	return r.pos > r.end
}

//Parallelism controls the fork-join passes over rows.
type Parallelism struct {
	Workers   int
	BlockSize int
}

//Option tunes the parallelism of views and builders.
type Option func(*Parallelism)

//WithWorkers limits the number of blocks processed at once. Non-positive means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Parallelism) { p.Workers = n }
}

//WithBlockSize sets the number of rows per block. Non-positive means DefaultBlockSize.
func WithBlockSize(n int) Option {
	return func(p *Parallelism) { p.BlockSize = n }
}

func newParallelism(options []Option) Parallelism {
	var p Parallelism
	for _, option := range options {
		option(&p)
	}
	return p.normalized()
}

func (p Parallelism) normalized() Parallelism {
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	if p.BlockSize <= 0 {
		p.BlockSize = DefaultBlockSize
	}
	return p
}

//forEachBlock splits [0, size) into blocks, runs fn on them concurrently and joins.
//The first error is returned after every started block has finished.
func (p Parallelism) forEachBlock(size int, fn func(begin, end int) error) error {
	if size == 0 {
		return nil
	}
	if p.Workers == 1 || size <= p.BlockSize {
		for r := NewRange(0, size, p.BlockSize); r.HasNext(); {
			begin := r.GetNext()
			if err := fn(begin, min(begin+p.BlockSize, size)); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(p.Workers)
	for r := NewRange(0, size, p.BlockSize); r.HasNext(); {
		begin := r.GetNext()
		end := min(begin+p.BlockSize, size)
		g.Go(func() error {
			return fn(begin, end)
		})
	}
	return g.Wait()
}
