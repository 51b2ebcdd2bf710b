package NS2D

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/state"
)

/*
	Incompressible 2D Navier-Stokes in vorticity form:
		d(rot)/dt = -u.grad(rot) + dissipation
	The velocity is rebuilt from rot_fft on demand.
*/
type NS2D struct {
	op *operators.Operators2D
}

func New(op *operators.Operators2D) (c *NS2D) {
	c = &NS2D{op: op}
	return
}

func (c *NS2D) Info() state.Info {
	return state.Info{
		Name:           "ns2d",
		KeysStateSpect: []string{"rot_fft"},
		KeysStatePhys:  []string{"ux", "uy", "rot"},
		KeysPhysNeeded: []string{"ux", "uy", "rot"},
		KeysComputable: []string{"ux_fft", "uy_fft", "div_fft"},
	}
}

func (c *NS2D) Relations() state.Relations {
	return state.Relations{
		"div_fft": func(s *state.State) (f state.Field, err error) {
			f.Spect = s.Oper.NewSpect()
			return
		},
	}
}

func (c *NS2D) SpectFromPhys() state.Relations { return nil }

func (c *NS2D) TendenciesNonlinear(spect, tend map[string]*mat.CDense) (err error) {
	if err = model_problems.CheckTendencyKeys(c.Info(), spect, tend); err != nil {
		return
	}
	var (
		op           = c.op
		rotFFT       = spect["rot_fft"]
		uxFFT, uyFFT = op.VecFFTFromRotFFT(rotFFT)
		ux, uy       = op.IFFT2D(uxFFT), op.IFFT2D(uyFFT)
		adv          = model_problems.Advection(op, ux, uy, rotFFT)
	)
	adv.Scale(-1, adv)
	op.FFT2DTo(tend["rot_fft"], adv)
	return
}

func (c *NS2D) EnergiesFFT(s *state.State) (EK, EA *mat.Dense, err error) {
	var (
		ux, uy *mat.CDense
	)
	if ux, err = s.ComputeSpect("ux_fft"); err != nil {
		return
	}
	if uy, err = s.ComputeSpect("uy_fft"); err != nil {
		return
	}
	EK = model_problems.KineticEnergyFFT(c.op, ux, uy)
	EA = c.op.NewSpectReal()
	return
}

func (c *NS2D) EnergyWeight(key string) (w *mat.Dense, potential bool, err error) {
	if key != "rot_fft" {
		err = model_problems.UnknownWeight(c.Info(), key)
		return
	}
	w = model_problems.InverseK2Weight(c.op)
	return
}

func (c *NS2D) MaxWaveSpeed() float64       { return 0 }
func (c *NS2D) MaxLinearFrequency() float64 { return 0 }

func (c *NS2D) InitFromRotFFT(s *state.State, rot *mat.CDense) error {
	return s.InitFromSpect(map[string]*mat.CDense{"rot_fft": rot})
}

// InitFromUxUyFFT keeps only the rotational part of the velocity
func (c *NS2D) InitFromUxUyFFT(s *state.State, ux, uy *mat.CDense) error {
	return c.InitFromRotFFT(s, c.op.RotFFTFromVecFFT(ux, uy))
}
