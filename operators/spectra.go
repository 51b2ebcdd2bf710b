package operators

import (
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// shellBins maps the local spectral modes onto isotropic wavenumber shells
// kh = n*DeltaKh. The operator is fixed for the life of Operators2D.
type shellBins struct {
	Kh      []float64
	DeltaKh float64
	op      *sparse.CSR
}

func newShellBins(op *Operators2D) (sb *shellBins) {
	var (
		deltak = math.Max(op.DeltaKx, op.DeltaKy)
		kxmax  = op.DeltaKx * float64(op.NX/2)
		kymax  = op.DeltaKy * float64(op.NY/2)
		nkh    = int(math.Hypot(kxmax, kymax)/deltak) + 2
		dok    = sparse.NewDOK(nkh, op.NKXLoc*op.NY)
		k2     = op.K2.RawMatrix().Data
	)
	sb = &shellBins{
		Kh:      make([]float64, nkh),
		DeltaKh: deltak,
	}
	for n := range sb.Kh {
		sb.Kh[n] = float64(n) * deltak
	}
	for ik := 0; ik < op.NKXLoc; ik++ {
		w := op.HermitianWeight(ik) / deltak
		for iy := 0; iy < op.NY; iy++ {
			i := ik*op.NY + iy
			ish := int(math.Round(math.Sqrt(k2[i]) / deltak))
			dok.Set(ish, i, w)
		}
	}
	sb.op = dok.ToCSR()
	return
}

// Kh returns the isotropic shell wavenumbers used by Spectrum2D
func (op *Operators2D) Kh() []float64 {
	return op.shells.Kh
}

// Spectrum2D bins a real spectral energy density into isotropic shells,
// normalized so that sum(spectrum)*DeltaKh is the total. Collective, every
// rank receives the global spectrum.
func (op *Operators2D) Spectrum2D(f *mat.Dense) (spectrum []float64) {
	op.checkSpectReal(f)
	nkh, _ := op.shells.op.Dims()
	spectrum = make([]float64, nkh)
	op.shells.op.MulVecTo(spectrum, false, f.RawMatrix().Data)
	spectrum = op.Comm.AllReduceSumVec(spectrum)
	return
}

// SpectrumKyKx folds ky and -ky together and returns the global
// (NY/2+1) x NKX spectral density on every rank, collective
func (op *Operators2D) SpectrumKyKx(f *mat.Dense) (spectrum *mat.Dense) {
	op.checkSpectReal(f)
	var (
		nky   = op.NY/2 + 1
		local = make([]float64, nky*op.NKX)
		norm  = 1 / (op.DeltaKx * op.DeltaKy)
		fd    = f.RawMatrix()
	)
	for ik := 0; ik < op.NKXLoc; ik++ {
		j := op.IKX0 + ik
		w := op.HermitianWeight(ik) * norm
		for iy := 0; iy < op.NY; iy++ {
			n := iy
			if iy > op.NY/2 {
				n = op.NY - iy
			}
			local[n*op.NKX+j] += w * fd.Data[ik*fd.Stride+iy]
		}
	}
	spectrum = mat.NewDense(nky, op.NKX, op.Comm.AllReduceSumVec(local))
	return
}

// EnergyFromSpect computes |f|^2/2 for every local mode
func (op *Operators2D) EnergyFromSpect(f *mat.CDense) (e *mat.Dense) {
	op.checkSpect(f)
	e = op.NewSpectReal()
	ed := e.RawMatrix().Data
	for i, v := range raw(f) {
		ed[i] = 0.5 * (real(v)*real(v) + imag(v)*imag(v))
	}
	return
}
