package SW1L

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/state"
)

/*
	One layer shallow water on a beta plane, vector invariant form:
		du/dt = -(rot + f) z x u - grad(|u|^2/2 + c2 eta)
		d(eta)/dt = -div(h u), h = 1 + eta
	The state is evolved as rot_fft, div_fft and eta_fft.
*/
type SW1L struct {
	op          *operators.Operators2D
	F, C2, Beta float64
}

func New(op *operators.Operators2D, f, c2, beta float64) (c *SW1L, err error) {
	if c2 <= 0 {
		err = fmt.Errorf("sw1l needs a positive c2, have %g", c2)
		return
	}
	c = &SW1L{op: op, F: f, C2: c2, Beta: beta}
	return
}

func (c *SW1L) Info() state.Info {
	return state.Info{
		Name:           "sw1l",
		KeysStateSpect: []string{"rot_fft", "div_fft", "eta_fft"},
		KeysStatePhys:  []string{"ux", "uy", "eta"},
		KeysPhysNeeded: []string{"ux", "uy", "eta", "rot", "div"},
		KeysComputable: []string{"ux_fft", "uy_fft", "h", "Jx", "Jy", "Jx_fft", "Jy_fft", "q", "q_fft", "a_fft"},
	}
}

func (c *SW1L) physProduct(s *state.State, k1 string, fn func(a, b float64) float64, k2 string) (f state.Field, err error) {
	var (
		a, b *mat.Dense
	)
	if a, err = s.ComputePhys(k1); err != nil {
		return
	}
	if b, err = s.ComputePhys(k2); err != nil {
		return
	}
	f.Phys = c.op.NewPhys()
	f.Phys.Apply(func(i, j int, _ float64) float64 {
		return fn(a.At(i, j), b.At(i, j))
	}, f.Phys)
	return
}

func (c *SW1L) Relations() state.Relations {
	flux := func(a, eta float64) float64 { return (1 + eta) * a }
	return state.Relations{
		"h": func(s *state.State) (f state.Field, err error) {
			var eta *mat.Dense
			if eta, err = s.ComputePhys("eta"); err != nil {
				return
			}
			f.Phys = mat.DenseCopyOf(eta)
			f.Phys.Apply(func(_, _ int, v float64) float64 { return 1 + v }, f.Phys)
			return
		},
		"Jx": func(s *state.State) (state.Field, error) {
			return c.physProduct(s, "ux", flux, "eta")
		},
		"Jy": func(s *state.State) (state.Field, error) {
			return c.physProduct(s, "uy", flux, "eta")
		},
		// Linearized potential vorticity
		"q": func(s *state.State) (state.Field, error) {
			return c.physProduct(s, "rot", func(rot, eta float64) float64 {
				return rot - c.F*eta
			}, "eta")
		},
		// Ageostrophic variable, zero for a geostrophically balanced state
		"a_fft": func(s *state.State) (f state.Field, err error) {
			var (
				rot, eta *mat.CDense
			)
			if rot, err = s.ComputeSpect("rot_fft"); err != nil {
				return
			}
			if eta, err = s.ComputeSpect("eta_fft"); err != nil {
				return
			}
			f.Spect = c.op.NewSpect()
			var (
				a  = f.Spect.RawCMatrix().Data
				rd = rot.RawCMatrix().Data
				ed = eta.RawCMatrix().Data
				k2 = c.op.K2.RawMatrix().Data
			)
			for i := range a {
				a[i] = complex(c.F, 0)*rd[i] + complex(c.C2*k2[i], 0)*ed[i]
			}
			return
		},
	}
}

// SpectFromPhys rebuilds rot_fft and div_fft from the physical velocity
func (c *SW1L) SpectFromPhys() state.Relations {
	fromVelocity := func(div bool) state.Relation {
		return func(s *state.State) (f state.Field, err error) {
			var (
				ux = c.op.FFT2D(s.PhysRaw("ux"))
				uy = c.op.FFT2D(s.PhysRaw("uy"))
			)
			if div {
				f.Spect = c.op.DivFFTFromVecFFT(ux, uy)
			} else {
				f.Spect = c.op.RotFFTFromVecFFT(ux, uy)
			}
			return
		}
	}
	return state.Relations{
		"rot_fft": fromVelocity(false),
		"div_fft": fromVelocity(true),
	}
}

func (c *SW1L) TendenciesNonlinear(spect, tend map[string]*mat.CDense) (err error) {
	if err = model_problems.CheckTendencyKeys(c.Info(), spect, tend); err != nil {
		return
	}
	var (
		op     = c.op
		rotFFT = spect["rot_fft"]
		divFFT = spect["div_fft"]
		etaFFT = spect["eta_fft"]
	)
	var (
		uxFFT, uyFFT = op.VecFFTFromRotDivFFT(rotFFT, divFFT)
		ux, uy       = op.IFFT2D(uxFFT), op.IFFT2D(uyFFT)
		rot, eta     = op.IFFT2D(rotFFT), op.IFFT2D(etaFFT)
		Fx, Fy, Phi  = op.NewPhys(), op.NewPhys(), op.NewPhys()
		Ex, Ey       = op.NewPhys(), op.NewPhys()
	)
	for i := 0; i < op.NYLoc; i++ {
		for j := 0; j < op.NX; j++ {
			var (
				vx, vy = ux.At(i, j), uy.At(i, j)
				absRot = rot.At(i, j) + c.F
				e      = eta.At(i, j)
			)
			Fx.Set(i, j, absRot*vy)
			Fy.Set(i, j, -absRot*vx)
			Phi.Set(i, j, 0.5*(vx*vx+vy*vy)+c.C2*e)
			Ex.Set(i, j, e*vx)
			Ey.Set(i, j, e*vy)
		}
	}
	var (
		FxFFT, FyFFT = op.FFT2D(Fx), op.FFT2D(Fy)
		PhiFFT       = op.FFT2D(Phi)
		rotT         = op.RotFFTFromVecFFT(FxFFT, FyFFT)
		divT         = op.DivFFTFromVecFFT(FxFFT, FyFFT)
		divJ         = op.DivFFTFromVecFFT(op.FFT2D(Ex), op.FFT2D(Ey))
		tRot         = tend["rot_fft"].RawCMatrix().Data
		tDiv         = tend["div_fft"].RawCMatrix().Data
		tEta         = tend["eta_fft"].RawCMatrix().Data
		k2           = op.K2.RawMatrix().Data
		beta         = complex(c.Beta, 0)
	)
	var (
		rt, dt = rotT.RawCMatrix().Data, divT.RawCMatrix().Data
		pd, dj = PhiFFT.RawCMatrix().Data, divJ.RawCMatrix().Data
		vy, dv = uyFFT.RawCMatrix().Data, divFFT.RawCMatrix().Data
	)
	for i := range tRot {
		tRot[i] = rt[i] - beta*vy[i]
		tDiv[i] = dt[i] + complex(k2[i], 0)*pd[i]
		tEta[i] = -dv[i] - dj[i]
	}
	return
}

// EnergiesFFT uses the thickness weighted velocity, sqrt(h) u, for the
// kinetic part
func (c *SW1L) EnergiesFFT(s *state.State) (EK, EA *mat.Dense, err error) {
	var (
		ux, uy, eta *mat.Dense
		etaFFT      *mat.CDense
	)
	if ux, err = s.ComputePhys("ux"); err != nil {
		return
	}
	if uy, err = s.ComputePhys("uy"); err != nil {
		return
	}
	if eta, err = s.ComputePhys("eta"); err != nil {
		return
	}
	if etaFFT, err = s.ComputeSpect("eta_fft"); err != nil {
		return
	}
	var (
		wx, wy = c.op.NewPhys(), c.op.NewPhys()
	)
	wx.Apply(func(i, j int, _ float64) float64 {
		return model_problems.SqrtPositive(1+eta.At(i, j)) * ux.At(i, j)
	}, wx)
	wy.Apply(func(i, j int, _ float64) float64 {
		return model_problems.SqrtPositive(1+eta.At(i, j)) * uy.At(i, j)
	}, wy)
	EK = model_problems.KineticEnergyFFT(c.op, c.op.FFT2D(wx), c.op.FFT2D(wy))
	EA = c.op.EnergyFromSpect(etaFFT)
	EA.Scale(c.C2, EA)
	return
}

func (c *SW1L) EnergyWeight(key string) (w *mat.Dense, potential bool, err error) {
	switch key {
	case "rot_fft", "div_fft":
		w = model_problems.InverseK2Weight(c.op)
	case "eta_fft":
		w = model_problems.ConstantWeight(c.op, c.C2)
		potential = true
	default:
		err = model_problems.UnknownWeight(c.Info(), key)
	}
	return
}

func (c *SW1L) MaxWaveSpeed() float64       { return math.Sqrt(c.C2) }
func (c *SW1L) MaxLinearFrequency() float64 { return math.Abs(c.F) }
