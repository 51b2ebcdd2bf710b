package operators

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// RandomPhys draws a standard normal field. The draw runs over global
// indices so that every decomposition of the grid sees the same field.
func (op *Operators2D) RandomPhys(seed uint64) (f *mat.Dense) {
	var (
		rng    = rand.New(rand.NewPCG(seed, 7))
		global = make([]float64, op.NX*op.NY)
	)
	for i := range global {
		global[i] = rng.NormFloat64()
	}
	f = op.NewPhys()
	copy(f.RawMatrix().Data, global[op.IY0*op.NX:(op.IY0+op.NYLoc)*op.NX])
	return
}

// RandomSpect is the dealiased transform of RandomPhys with a zero mean
func (op *Operators2D) RandomSpect(seed uint64) (f *mat.CDense) {
	f = op.FFT2D(op.RandomPhys(seed))
	op.Dealias(f)
	if op.IKX0 == 0 {
		f.RawCMatrix().Data[0] = 0
	}
	return
}
