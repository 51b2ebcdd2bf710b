package timestepping

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/types"
	"github.com/notargets/gospectral/utils"
)

/*
	The explicit schemes integrate the linear dissipation exactly with the
	integrating factor exp(-fd dt), where per mode
		fd = nu_2 k^2 + nu_4 k^4 + nu_8 k^8 + nu_m4 / k^4
	and only the nonlinear tendency (plus forcing) is stepped explicitly.
*/
type rungeKutta struct {
	scheme      types.TimeScheme
	keys        []string
	fd          []float64
	diss, diss2 []float64 // exp(-fd dt), exp(-fd dt/2)
	dtDiss      float64
	S0, Si      map[string]*mat.CDense
	tend        [4]map[string]*mat.CDense
}

// DissipationFrequencies evaluates fd on the local spectral slab, zero for
// the mean mode
func DissipationFrequencies(K2 *mat.Dense, nu2, nu4, nu8, nuM4 float64) (fd []float64) {
	k2 := K2.RawMatrix().Data
	fd = make([]float64, len(k2))
	for i, v := range k2 {
		if v == 0 {
			continue
		}
		fd[i] = nu2*v + nu4*utils.POW(v, 2) + nu8*utils.POW(v, 4)
		if nuM4 != 0 {
			fd[i] += nuM4 / utils.POW(v, 2)
		}
	}
	return
}

func newRungeKutta(scheme types.TimeScheme, keys []string, fd []float64, newSpect func() *mat.CDense) (rk *rungeKutta) {
	rk = &rungeKutta{
		scheme: scheme,
		keys:   keys,
		fd:     fd,
		diss:   make([]float64, len(fd)),
		diss2:  make([]float64, len(fd)),
		dtDiss: -1,
		S0:     make(map[string]*mat.CDense, len(keys)),
		Si:     make(map[string]*mat.CDense, len(keys)),
	}
	for _, k := range keys {
		rk.S0[k], rk.Si[k] = newSpect(), newSpect()
	}
	for n := 0; n < scheme.Stages(); n++ {
		rk.tend[n] = make(map[string]*mat.CDense, len(keys))
		for _, k := range keys {
			rk.tend[n][k] = newSpect()
		}
	}
	return
}

func (rk *rungeKutta) updateDissipation(dt float64) {
	if dt == rk.dtDiss {
		return
	}
	for i, f := range rk.fd {
		rk.diss[i] = math.Exp(-f * dt)
		rk.diss2[i] = math.Exp(-f * dt / 2)
	}
	rk.dtDiss = dt
}

// Step advances S in place by dt, tendencies evaluates the explicit
// right hand side of a stage
func (rk *rungeKutta) Step(S map[string]*mat.CDense, dt float64,
	tendencies func(spect, tend map[string]*mat.CDense) error) (err error) {
	var (
		cdt  = complex(dt, 0)
		cdt2 = complex(dt/2, 0)
	)
	rk.updateDissipation(dt)
	for _, k := range rk.keys {
		copy(rk.S0[k].RawCMatrix().Data, S[k].RawCMatrix().Data)
	}
	if err = tendencies(rk.S0, rk.tend[0]); err != nil {
		return
	}
	// each combines S0, the stage tendencies and the dissipation factors of a mode
	each := func(dst map[string]*mat.CDense, fn func(i int, s0 complex128, t [4][]complex128) complex128) {
		for _, k := range rk.keys {
			var (
				d  = dst[k].RawCMatrix().Data
				s0 = rk.S0[k].RawCMatrix().Data
				t  [4][]complex128
			)
			for n := 0; n < rk.scheme.Stages(); n++ {
				t[n] = rk.tend[n][k].RawCMatrix().Data
			}
			for i := range d {
				d[i] = fn(i, s0[i], t)
			}
		}
	}
	var (
		diss  = func(i int) complex128 { return complex(rk.diss[i], 0) }
		diss2 = func(i int) complex128 { return complex(rk.diss2[i], 0) }
	)
	switch rk.scheme {
	case types.Euler:
		each(S, func(i int, s0 complex128, t [4][]complex128) complex128 {
			return diss(i) * (s0 + cdt*t[0][i])
		})
	case types.RK2:
		each(rk.Si, func(i int, s0 complex128, t [4][]complex128) complex128 {
			return diss2(i) * (s0 + cdt2*t[0][i])
		})
		if err = tendencies(rk.Si, rk.tend[1]); err != nil {
			return
		}
		each(S, func(i int, s0 complex128, t [4][]complex128) complex128 {
			return diss(i)*s0 + cdt*diss2(i)*t[1][i]
		})
	case types.RK4:
		each(rk.Si, func(i int, s0 complex128, t [4][]complex128) complex128 {
			return diss2(i) * (s0 + cdt2*t[0][i])
		})
		if err = tendencies(rk.Si, rk.tend[1]); err != nil {
			return
		}
		each(rk.Si, func(i int, s0 complex128, t [4][]complex128) complex128 {
			return diss2(i)*s0 + cdt2*t[1][i]
		})
		if err = tendencies(rk.Si, rk.tend[2]); err != nil {
			return
		}
		each(rk.Si, func(i int, s0 complex128, t [4][]complex128) complex128 {
			return diss(i)*s0 + cdt*diss2(i)*t[2][i]
		})
		if err = tendencies(rk.Si, rk.tend[3]); err != nil {
			return
		}
		each(S, func(i int, s0 complex128, t [4][]complex128) complex128 {
			return diss(i)*s0 + cdt/6*(diss(i)*t[0][i]+2*diss2(i)*(t[1][i]+t[2][i])+t[3][i])
		})
	}
	return
}
