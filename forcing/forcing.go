package forcing

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/InputParameters"
	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/types"
)

/*
	Forcing draws random spectral forcing of one state key in a wavenumber
	band. Realization n depends only on (seed, n), so that a restarted run and
	every decomposition of the grid draw the same forcing.
		- random:   a new realization every step, normalized so that
		            sum(w |f|^2) dt/2 = forcing_rate
		- tcrandom: realizations every time_correlation, linearly
		            interpolated, normalized so that
		            sum(w |f|^2) = forcing_rate / time_correlation
	w is the energy weight of the forced key.
*/
type Forcing struct {
	Type       types.ForcingType
	Key        string
	Rate       float64
	Tau        float64 // Time correlation
	Seed       uint64
	NModes     int // Global number of forced modes
	op         *operators.Operators2D
	solver     model_problems.Solver
	weight     *mat.Dense
	band       []bool // Global mask, kx major
	current    map[string]*mat.CDense
	realized   map[int]*mat.CDense // tcrandom realizations by index
	stepFactor float64
}

func NewForcing(op *operators.Operators2D, sv model_problems.Solver, fp InputParameters.Forcing) (f *Forcing, err error) {
	var (
		info = sv.Info()
	)
	f = &Forcing{
		Key:      fp.KeyForced,
		Rate:     fp.ForcingRate,
		Tau:      fp.TimeCorrelation,
		Seed:     uint64(fp.Seed),
		op:       op,
		solver:   sv,
		realized: make(map[int]*mat.CDense),
	}
	if f.Type, err = types.NewForcingType(fp.Type); err != nil {
		return
	}
	if !containsKey(info.KeysStateSpect, f.Key) {
		err = fmt.Errorf("forced key %q is not a spectral state key of %s", f.Key, info.Name)
		return
	}
	if f.weight, _, err = sv.EnergyWeight(f.Key); err != nil {
		return
	}
	if f.Type == types.ForcingTimeCorrelatedRandom && f.Tau <= 0 {
		err = fmt.Errorf("time correlation must be positive, have %g", f.Tau)
		return
	}
	var (
		deltak = math.Max(op.DeltaKx, op.DeltaKy)
		kmin   = float64(fp.NKMinForcing) * deltak
		kmax   = float64(fp.NKMaxForcing) * deltak
		tol    = 1.e-10 * deltak
	)
	f.band = make([]bool, op.NKX*op.NY)
	for j := 0; j < op.NKX; j++ {
		for iy := 0; iy < op.NY; iy++ {
			var (
				kx, ky = op.Kxs[j], op.Kys[iy]
				k      = math.Hypot(kx, ky)
			)
			if k == 0 || k < kmin-tol || k > kmax+tol || j == op.NX/2 || iy == op.NY/2 {
				continue
			}
			f.band[j*op.NY+iy] = true
			f.NModes++
		}
	}
	if f.NModes == 0 {
		err = fmt.Errorf("forcing band [%d, %d] x %g holds no mode", fp.NKMinForcing, fp.NKMaxForcing, deltak)
		return
	}
	f.current = make(map[string]*mat.CDense, len(info.KeysStateSpect))
	for _, k := range info.KeysStateSpect {
		f.current[k] = op.NewSpect()
	}
	return
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// realization draws the normalized realization n, collective
func (f *Forcing) realization(n int) (fk *mat.CDense) {
	var (
		op  = f.op
		rng = rand.New(rand.NewPCG(f.Seed, uint64(n)))
	)
	fk = op.NewSpect()
	data := fk.RawCMatrix().Data
	for j := 0; j < op.NKX; j++ {
		for iy := 0; iy < op.NY; iy++ {
			if !f.band[j*op.NY+iy] {
				continue
			}
			// Every rank consumes the full sequence
			c := complex(rng.NormFloat64(), rng.NormFloat64())
			if ik := j - op.IKX0; ik >= 0 && ik < op.NKXLoc {
				data[ik*op.NY+iy] = c
			}
		}
	}
	// Projecting through physical space enforces the symmetry of kx = 0
	op.FFT2DTo(fk, op.IFFT2D(fk))
	op.Dealias(fk)
	var (
		norm   = f.weightedNorm(fk)
		target = f.Rate
	)
	if f.Type == types.ForcingTimeCorrelatedRandom {
		target = f.Rate / f.Tau
	}
	if norm > 0 {
		scale := complex(math.Sqrt(target/norm), 0)
		for i := range data {
			data[i] *= scale
		}
	}
	return
}

// weightedNorm is sum(w |f|^2) over the whole Fourier grid, collective
func (f *Forcing) weightedNorm(fk *mat.CDense) float64 {
	var (
		op = f.op
		e  = op.NewSpectReal()
		ed = e.RawMatrix().Data
		wd = f.weight.RawMatrix().Data
	)
	for i, v := range fk.RawCMatrix().Data {
		ed[i] = wd[i] * (real(v)*real(v) + imag(v)*imag(v))
	}
	return op.SumWavenumbers(e)
}

// Compute updates the forcing for the step starting at time t with step
// index it and size dt. Collective.
func (f *Forcing) Compute(t float64, it int, dt float64) (fk map[string]*mat.CDense) {
	var (
		dst = f.current[f.Key]
	)
	switch f.Type {
	case types.ForcingRandom:
		r := f.realization(it)
		scale := complex(math.Sqrt(2/dt), 0)
		for i, v := range r.RawCMatrix().Data {
			dst.RawCMatrix().Data[i] = scale * v
		}
		f.stepFactor = dt
	case types.ForcingTimeCorrelatedRandom:
		var (
			n     = int(math.Floor(t/f.Tau + 1.e-12))
			alpha = t/f.Tau - float64(n)
			fA    = f.realizationCached(n)
			fB    = f.realizationCached(n + 1)
		)
		alpha = math.Min(math.Max(alpha, 0), 1)
		for key := range f.realized {
			if key < n {
				delete(f.realized, key)
			}
		}
		a, b := fA.RawCMatrix().Data, fB.RawCMatrix().Data
		for i := range a {
			dst.RawCMatrix().Data[i] = a[i] + complex(alpha, 0)*(b[i]-a[i])
		}
		f.stepFactor = dt
	}
	return f.current
}

func (f *Forcing) realizationCached(n int) (fk *mat.CDense) {
	var ok bool
	if fk, ok = f.realized[n]; !ok {
		fk = f.realization(n)
		f.realized[n] = fk
	}
	return
}

// Get returns the forcing of the last step, zero for the unforced keys
func (f *Forcing) Get() map[string]*mat.CDense { return f.current }

/*
	InjectionRates splits the power injected by the forcing of the last step:
		P1 = sum(w Re(conj(s) f)), the work on the state spect, the sampled
		     state at the end of the step
		P2 = sum(w |f|^2) dt/2, the direct input of the forcing itself
	into kinetic (K) and potential (A) parts. Collective.
*/
func (f *Forcing) InjectionRates(spect map[string]*mat.CDense) (PK1, PK2, PA1, PA2 float64, err error) {
	if PK1, PA1, err = model_problems.EnergyTransfer(f.op, f.solver, spect, f.current); err != nil {
		return
	}
	if PK2, PA2, err = model_problems.EnergyTransfer(f.op, f.solver, f.current, f.current); err != nil {
		return
	}
	PK2 *= f.stepFactor / 2
	PA2 *= f.stepFactor / 2
	return
}
