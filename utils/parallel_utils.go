package utils

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrAborted = errors.New("utils: process group aborted")

// Group is a set of ranks, each running in its own goroutine, that exchange
// data only through the collectives on Comm. Every rank must enter the same
// sequence of collectives.
type Group struct {
	NP    int
	chans [][]chan any // chans[from][to]
	abort chan struct{}
	once  sync.Once
}

func NewGroup(NP int) (g *Group) {
	if NP < 1 {
		panic(fmt.Errorf("process group size must be positive, have %d", NP))
	}
	g = &Group{
		NP:    NP,
		chans: make([][]chan any, NP),
		abort: make(chan struct{}),
	}
	for from := 0; from < NP; from++ {
		g.chans[from] = make([]chan any, NP)
		for to := 0; to < NP; to++ {
			if to != from {
				// A rank can be at most one collective ahead of a peer
				g.chans[from][to] = make(chan any, 2)
			}
		}
	}
	return
}

// NewSerialComm returns the communicator of a single rank group.
func NewSerialComm() *Comm {
	return &Comm{g: NewGroup(1)}
}

// Abort wakes every rank blocked in a collective; they panic with ErrAborted,
// which Run converts into a returned error.
func (g *Group) Abort() {
	g.once.Do(func() { close(g.abort) })
}

// Run executes fn once per rank and returns the per rank errors. A rank that
// fails or panics aborts the group so that peers waiting on it fail too.
func (g *Group) Run(fn func(c *Comm) error) (errs []error) {
	var (
		wg = sync.WaitGroup{}
	)
	errs = make([]error, g.NP)
	for np := 0; np < g.NP; np++ {
		wg.Add(1)
		go func(np int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					if err, ok := r.(error); ok && errors.Is(err, ErrAborted) {
						errs[np] = ErrAborted
					} else {
						errs[np] = fmt.Errorf("rank %d: panic: %v", np, r)
					}
					g.Abort()
				}
			}()
			if err := fn(&Comm{g: g, rank: np}); err != nil {
				errs[np] = err
				g.Abort()
			}
		}(np)
	}
	wg.Wait()
	return
}

// FirstError returns the first non aborted error, falling back to ErrAborted.
func FirstError(errs []error) (err error) {
	for _, e := range errs {
		if e == nil {
			continue
		}
		if !errors.Is(e, ErrAborted) {
			return e
		}
		err = e
	}
	return
}

type Comm struct {
	g    *Group
	rank int
}

func (c *Comm) Rank() int           { return c.rank }
func (c *Comm) Size() int           { return c.g.NP }
func (c *Comm) IsCoordinator() bool { return c.rank == 0 }

func (c *Comm) send(to int, msg any) {
	select {
	case c.g.chans[c.rank][to] <- msg:
	case <-c.g.abort:
		panic(ErrAborted)
	}
}

func (c *Comm) recv(from int) (msg any) {
	select {
	case msg = <-c.g.chans[from][c.rank]:
	case <-c.g.abort:
		panic(ErrAborted)
	}
	return
}

// AllGather returns the values contributed by every rank, indexed by rank.
func (c *Comm) AllGather(v any) (all []any) {
	var (
		NP = c.g.NP
	)
	all = make([]any, NP)
	all[c.rank] = v
	for to := 0; to < NP; to++ {
		if to != c.rank {
			c.send(to, v)
		}
	}
	for from := 0; from < NP; from++ {
		if from != c.rank {
			all[from] = c.recv(from)
		}
	}
	return
}

func (c *Comm) Barrier() {
	if c.g.NP == 1 {
		return
	}
	c.AllGather(nil)
}

// Bcast returns root's value on every rank.
func (c *Comm) Bcast(v any, root int) any {
	if c.g.NP == 1 {
		return v
	}
	if c.rank == root {
		for to := 0; to < c.g.NP; to++ {
			if to != root {
				c.send(to, v)
			}
		}
		return v
	}
	return c.recv(root)
}

// Gather collects one value per rank on root; other ranks receive nil.
func (c *Comm) Gather(v any, root int) (all []any) {
	if c.rank != root {
		c.send(root, v)
		return
	}
	all = make([]any, c.g.NP)
	all[root] = v
	for from := 0; from < c.g.NP; from++ {
		if from != root {
			all[from] = c.recv(from)
		}
	}
	return
}

// AllReduceSum combines in rank order so every rank holds the identical sum.
func (c *Comm) AllReduceSum(v float64) (sum float64) {
	if c.g.NP == 1 {
		return v
	}
	for _, a := range c.AllGather(v) {
		sum += a.(float64)
	}
	return
}

func (c *Comm) AllReduceMax(v float64) (max float64) {
	if c.g.NP == 1 {
		return v
	}
	max = math.Inf(-1)
	for _, a := range c.AllGather(v) {
		// NaN must win so that every rank sees a divergence
		if f := a.(float64); f > max || math.IsNaN(f) {
			max = f
			if math.IsNaN(f) {
				break
			}
		}
	}
	return
}

// AllReduceSumVec returns a new slice holding the element wise sum.
func (c *Comm) AllReduceSumVec(v []float64) (sum []float64) {
	sum = make([]float64, len(v))
	if c.g.NP == 1 {
		copy(sum, v)
		return
	}
	for r, a := range c.AllGather(v) {
		part := a.([]float64)
		if len(part) != len(v) {
			panic(fmt.Errorf("reduction length mismatch from rank %d: %d != %d", r, len(part), len(v)))
		}
		for i, val := range part {
			sum[i] += val
		}
	}
	return
}

// AllToAll sends send[r] to rank r and returns recv[r] received from rank r.
// Buffers handed over are owned by the receiver afterwards.
func (c *Comm) AllToAll(send [][]complex128) (recv [][]complex128) {
	var (
		NP = c.g.NP
	)
	if len(send) != NP {
		panic(fmt.Errorf("all to all needs %d buffers, have %d", NP, len(send)))
	}
	recv = make([][]complex128, NP)
	recv[c.rank] = send[c.rank]
	for to := 0; to < NP; to++ {
		if to != c.rank {
			c.send(to, send[to])
		}
	}
	for from := 0; from < NP; from++ {
		if from != c.rank {
			recv[from] = c.recv(from).([]complex128)
		}
	}
	return
}

// PartitionMap splits MaxIndex items into ParallelDegree contiguous slabs
type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucket(kDim int) (bucketNum, min, max int) {
	if kDim < 0 || kDim >= pm.MaxIndex {
		return -1, 0, 0
	}
	// Initial guess, then walk to the owning slab
	bucketNum = int(float64(pm.ParallelDegree*kDim) / float64(pm.MaxIndex))
	for !(pm.Partitions[bucketNum][0] <= kDim && pm.Partitions[bucketNum][1] > kDim) {
		if pm.Partitions[bucketNum][0] > kDim {
			bucketNum--
		} else {
			bucketNum++
		}
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetLocalK(baseK int) (k, Kmax, bn int) {
	var (
		kmin, kmax int
	)
	bn, kmin, kmax = pm.GetBucket(baseK)
	Kmax = kmax - kmin
	k = baseK - kmin
	return
}

func (pm *PartitionMap) GetGlobalK(kLocal, bn int) (kGlobal int) {
	if bn == -1 {
		kGlobal = kLocal
		return
	}
	kGlobal = pm.Partitions[bn][0] + kLocal
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// Splits one dimension into ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
