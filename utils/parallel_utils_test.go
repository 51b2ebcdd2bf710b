package utils

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Test PartitionMap
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 7)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Test bucket probe and local/global index round trip
		for maxIndex := 10; maxIndex < 200; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				bn, min, max := pm.GetBucket(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax)
				kLocal, _, bn2 := pm.GetLocalK(k)
				assert.Equal(t, k, pm.GetGlobalK(kLocal, bn2))
			}
			bn, _, _ := pm.GetBucket(maxIndex)
			assert.Equal(t, -1, bn)
		}
	}
}

func TestGroupCollectives(t *testing.T) {
	{ // Test reductions agree on every rank
		var (
			NP   = 4
			sums = make([]float64, NP)
			maxs = make([]float64, NP)
			vecs = make([][]float64, NP)
		)
		errs := NewGroup(NP).Run(func(c *Comm) error {
			r := float64(c.Rank())
			sums[c.Rank()] = c.AllReduceSum(r + 0.1)
			maxs[c.Rank()] = c.AllReduceMax(-r)
			vecs[c.Rank()] = c.AllReduceSumVec([]float64{r, 1})
			return nil
		})
		require.Nil(t, FirstError(errs))
		for np := 0; np < NP; np++ {
			assert.InDelta(t, 6.4, sums[np], 1.e-12)
			assert.Equal(t, sums[0], sums[np])
			assert.Equal(t, 0., maxs[np])
			assert.Equal(t, []float64{6, 4}, vecs[np])
		}
	}
	{ // Test NaN propagates through the max reduction
		var (
			NP   = 3
			maxs = make([]float64, NP)
		)
		NewGroup(NP).Run(func(c *Comm) error {
			v := 1.
			if c.Rank() == 1 {
				v = math.NaN()
			}
			maxs[c.Rank()] = c.AllReduceMax(v)
			return nil
		})
		for np := 0; np < NP; np++ {
			assert.True(t, math.IsNaN(maxs[np]))
		}
	}
	{ // Test broadcast, gather and all to all
		var (
			NP       = 3
			bcast    = make([]string, NP)
			gathered [][]any
			recvs    = make([][][]complex128, NP)
		)
		errs := NewGroup(NP).Run(func(c *Comm) error {
			var path string
			if c.IsCoordinator() {
				path = "/tmp/run"
			}
			bcast[c.Rank()] = c.Bcast(path, 0).(string)
			if g := c.Gather(c.Rank()*10, 0); g != nil {
				gathered = append(gathered, g)
			}
			send := make([][]complex128, NP)
			for to := range send {
				send[to] = []complex128{complex(float64(c.Rank()), float64(to))}
			}
			recvs[c.Rank()] = c.AllToAll(send)
			c.Barrier()
			return nil
		})
		require.Nil(t, FirstError(errs))
		for np := 0; np < NP; np++ {
			assert.Equal(t, "/tmp/run", bcast[np])
			for from := 0; from < NP; from++ {
				assert.Equal(t, complex(float64(from), float64(np)), recvs[np][from][0])
			}
		}
		require.Len(t, gathered, 1)
		assert.Equal(t, []any{0, 10, 20}, gathered[0])
	}
	{ // Test a failing rank aborts peers blocked in a collective
		myErr := errors.New("rank failure")
		errs := NewGroup(3).Run(func(c *Comm) error {
			if c.Rank() == 2 {
				return myErr
			}
			c.Barrier()
			return nil
		})
		assert.ErrorIs(t, errs[0], ErrAborted)
		assert.ErrorIs(t, errs[1], ErrAborted)
		assert.Equal(t, myErr, FirstError(errs))
	}
	{ // Test a panicking rank is reported as an error
		errs := NewGroup(2).Run(func(c *Comm) error {
			if c.Rank() == 0 {
				panic("boom")
			}
			c.AllReduceSum(1)
			return nil
		})
		assert.Error(t, errs[0])
		assert.ErrorIs(t, errs[1], ErrAborted)
	}
	{ // Test the serial communicator short circuits collectives
		c := NewSerialComm()
		assert.True(t, c.IsCoordinator())
		assert.Equal(t, 2., c.AllReduceSum(2))
		assert.Equal(t, "x", c.Bcast("x", 0))
		assert.Equal(t, []any{5}, c.Gather(5, 0))
		c.Barrier()
	}
}
