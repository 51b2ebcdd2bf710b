package model_problems

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/state"
)

// Solver is the capability descriptor of an equation set. It declares the
// state keys and relations and evaluates the right hand side on stage values.
type Solver interface {
	Info() state.Info
	Relations() state.Relations
	// SpectFromPhys computes spectral state keys that are not the plain
	// transform of a physical state key
	SpectFromPhys() state.Relations
	// TendenciesNonlinear writes the explicit (non dissipative) tendency of
	// every spectral state key, evaluated on the stage values spect
	TendenciesNonlinear(spect, tend map[string]*mat.CDense) error
	// EnergiesFFT returns the kinetic and potential energy per local mode
	EnergiesFFT(s *state.State) (EK, EA *mat.Dense, err error)
	// EnergyWeight converts |key|^2 per mode into an energy density
	EnergyWeight(key string) (w *mat.Dense, potential bool, err error)
	MaxWaveSpeed() float64
	MaxLinearFrequency() float64
	InitFromRotFFT(s *state.State, rot *mat.CDense) error
}

// Advection computes u.grad(f) in physical space from the spectral f
func Advection(op *operators.Operators2D, ux, uy *mat.Dense, fFFT *mat.CDense) (adv *mat.Dense) {
	var (
		px, py = op.GradFFTFromFFT(fFFT)
		dfdx   = op.IFFT2D(px)
		dfdy   = op.IFFT2D(py)
	)
	adv = op.NewPhys()
	adv.MulElem(ux, dfdx)
	dfdy.MulElem(uy, dfdy)
	adv.Add(adv, dfdy)
	return
}

// KineticEnergyFFT is |ux|^2/2 + |uy|^2/2 per mode
func KineticEnergyFFT(op *operators.Operators2D, ux, uy *mat.CDense) (EK *mat.Dense) {
	EK = op.EnergyFromSpect(ux)
	EK.Add(EK, op.EnergyFromSpect(uy))
	return
}

// InverseK2Weight is 1/k^2 with zero for the mean mode, the energy weight
// of a vorticity
func InverseK2Weight(op *operators.Operators2D) (w *mat.Dense) {
	w = op.NewSpectReal()
	k2 := op.K2.RawMatrix().Data
	wd := w.RawMatrix().Data
	for i, v := range k2 {
		if v != 0 {
			wd[i] = 1 / v
		}
	}
	return
}

// ConstantWeight fills a weight array with a single value
func ConstantWeight(op *operators.Operators2D, c float64) (w *mat.Dense) {
	w = op.NewSpectReal()
	wd := w.RawMatrix().Data
	for i := range wd {
		wd[i] = c
	}
	return
}

// CheckTendencyKeys validates stage maps against the declared spectral keys
func CheckTendencyKeys(info state.Info, spect, tend map[string]*mat.CDense) error {
	for _, k := range info.KeysStateSpect {
		if spect[k] == nil || tend[k] == nil {
			return fmt.Errorf("%s: stage arrays miss %q", info.Name, k)
		}
	}
	return nil
}

// UnknownWeight is the error returned by EnergyWeight for keys outside the state
func UnknownWeight(info state.Info, key string) error {
	return fmt.Errorf("%w: %s has no energy weight for %q", state.ErrUnknownKey, info.Name, key)
}

// SqrtPositive is sqrt(max(x, 0)), used for layer thicknesses
func SqrtPositive(x float64) float64 {
	return math.Sqrt(math.Max(x, 0))
}

// EnergyTransfer is the rate of change of the quadratic energy when the
// spectral state moves along rate, split into kinetic and potential parts.
// Collective.
func EnergyTransfer(op *operators.Operators2D, sv Solver, spect, rate map[string]*mat.CDense) (PK, PA float64, err error) {
	for _, key := range sv.Info().KeysStateSpect {
		var (
			w         *mat.Dense
			potential bool
		)
		if w, potential, err = sv.EnergyWeight(key); err != nil {
			return
		}
		var (
			s, r = spect[key], rate[key]
			wd   = w.RawMatrix().Data
			sum  float64
		)
		if s == nil || r == nil {
			err = fmt.Errorf("%s: energy transfer misses %q", sv.Info().Name, key)
			return
		}
		sd, rd := s.RawCMatrix().Data, r.RawCMatrix().Data
		for ik := 0; ik < op.NKXLoc; ik++ {
			var colSum float64
			for iy := 0; iy < op.NY; iy++ {
				i := ik*op.NY + iy
				colSum += wd[i] * real(cmplx.Conj(sd[i])*rd[i])
			}
			sum += op.HermitianWeight(ik) * colSum
		}
		if potential {
			PA += sum
		} else {
			PK += sum
		}
	}
	PK = op.Comm.AllReduceSum(PK)
	PA = op.Comm.AllReduceSum(PA)
	return
}
