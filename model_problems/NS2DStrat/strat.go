package NS2DStrat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/state"
)

/*
	Stratified 2D Boussinesq flow in a vertical plane, y pointing up:
		d(rot)/dt = -u.grad(rot) + db/dx
		d(b)/dt   = -u.grad(b) - N^2 uy
	The energy is |u|^2/2 + b^2/(2 N^2).
*/
type NS2DStrat struct {
	op *operators.Operators2D
	N  float64 // Brunt-Vaisala frequency
}

func New(op *operators.Operators2D, N float64) (c *NS2DStrat, err error) {
	if N <= 0 {
		err = fmt.Errorf("ns2d.strat needs a positive Brunt-Vaisala frequency, have %g", N)
		return
	}
	c = &NS2DStrat{op: op, N: N}
	return
}

func (c *NS2DStrat) Info() state.Info {
	return state.Info{
		Name:                 "ns2d.strat",
		KeysStateSpect:       []string{"rot_fft", "b_fft"},
		KeysStatePhys:        []string{"ux", "uy", "rot", "b"},
		KeysPhysNeeded:       []string{"ux", "uy", "rot", "b"},
		KeysComputable:       []string{"ux_fft", "uy_fft", "ap_fft", "am_fft"},
		KeysLinearEigenmodes: []string{"ap_fft", "am_fft"},
	}
}

// The linear waves have the eigenmodes b_fft +- (N/k) rot_fft, with the
// frequencies +- N kx/k
func (c *NS2DStrat) Relations() state.Relations {
	eigen := func(sign float64) state.Relation {
		return func(s *state.State) (f state.Field, err error) {
			var (
				rot, b *mat.CDense
			)
			if rot, err = s.ComputeSpect("rot_fft"); err != nil {
				return
			}
			if b, err = s.ComputeSpect("b_fft"); err != nil {
				return
			}
			f.Spect = s.Oper.NewSpect()
			var (
				a  = f.Spect.RawCMatrix().Data
				rd = rot.RawCMatrix().Data
				bd = b.RawCMatrix().Data
				k2 = s.Oper.K2Not0.RawMatrix().Data
			)
			for i := range a {
				a[i] = bd[i] + complex(sign*c.N/math.Sqrt(k2[i]), 0)*rd[i]
			}
			return
		}
	}
	return state.Relations{
		"ap_fft": eigen(1),
		"am_fft": eigen(-1),
	}
}

func (c *NS2DStrat) SpectFromPhys() state.Relations { return nil }

func (c *NS2DStrat) TendenciesNonlinear(spect, tend map[string]*mat.CDense) (err error) {
	if err = model_problems.CheckTendencyKeys(c.Info(), spect, tend); err != nil {
		return
	}
	var (
		op           = c.op
		rotFFT, bFFT = spect["rot_fft"], spect["b_fft"]
		uxFFT, uyFFT = op.VecFFTFromRotFFT(rotFFT)
		ux, uy       = op.IFFT2D(uxFFT), op.IFFT2D(uyFFT)
		advRot       = model_problems.Advection(op, ux, uy, rotFFT)
		advB         = model_problems.Advection(op, ux, uy, bFFT)
		dbdx, _      = op.GradFFTFromFFT(bFFT)
		N2           = complex(c.N*c.N, 0)
	)
	op.FFT2DTo(tend["rot_fft"], advRot)
	op.FFT2DTo(tend["b_fft"], advB)
	var (
		tRot = tend["rot_fft"].RawCMatrix().Data
		tB   = tend["b_fft"].RawCMatrix().Data
		gx   = dbdx.RawCMatrix().Data
		vy   = uyFFT.RawCMatrix().Data
	)
	for i := range tRot {
		tRot[i] = gx[i] - tRot[i]
		tB[i] = -tB[i] - N2*vy[i]
	}
	return
}

func (c *NS2DStrat) EnergiesFFT(s *state.State) (EK, EA *mat.Dense, err error) {
	var (
		ux, uy, b *mat.CDense
	)
	if ux, err = s.ComputeSpect("ux_fft"); err != nil {
		return
	}
	if uy, err = s.ComputeSpect("uy_fft"); err != nil {
		return
	}
	if b, err = s.ComputeSpect("b_fft"); err != nil {
		return
	}
	EK = model_problems.KineticEnergyFFT(c.op, ux, uy)
	EA = c.op.EnergyFromSpect(b)
	EA.Scale(1/(c.N*c.N), EA)
	return
}

func (c *NS2DStrat) EnergyWeight(key string) (w *mat.Dense, potential bool, err error) {
	switch key {
	case "rot_fft":
		w = model_problems.InverseK2Weight(c.op)
	case "b_fft":
		w = model_problems.ConstantWeight(c.op, 1/(c.N*c.N))
		potential = true
	default:
		err = model_problems.UnknownWeight(c.Info(), key)
	}
	return
}

func (c *NS2DStrat) MaxWaveSpeed() float64       { return 0 }
func (c *NS2DStrat) MaxLinearFrequency() float64 { return c.N }

// InitFromRotFFT starts without buoyancy perturbation
func (c *NS2DStrat) InitFromRotFFT(s *state.State, rot *mat.CDense) error {
	return c.InitFromRotBFFT(s, rot, c.op.NewSpect())
}

func (c *NS2DStrat) InitFromRotBFFT(s *state.State, rot, b *mat.CDense) error {
	return s.InitFromSpect(map[string]*mat.CDense{"rot_fft": rot, "b_fft": b})
}

// InitFromApAmFFT inverts the linear eigenmode decomposition
func (c *NS2DStrat) InitFromApAmFFT(s *state.State, ap, am *mat.CDense) error {
	var (
		rot = c.op.NewSpect()
		b   = c.op.NewSpect()
		rd  = rot.RawCMatrix().Data
		bd  = b.RawCMatrix().Data
		pd  = ap.RawCMatrix().Data
		md  = am.RawCMatrix().Data
		k2  = c.op.K2.RawMatrix().Data
	)
	for i := range rd {
		bd[i] = 0.5 * (pd[i] + md[i])
		if k2[i] != 0 {
			rd[i] = complex(0.5*math.Sqrt(k2[i])/c.N, 0) * (pd[i] - md[i])
		}
	}
	return c.InitFromRotBFFT(s, rot, b)
}
