package NS2D

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/state"
	"github.com/notargets/gospectral/utils"
)

func newNS2D(t *testing.T, n int) (c *NS2D, s *state.State) {
	op, err := operators.NewOperators2D(n, n, 2*math.Pi, 2*math.Pi, 2./3., utils.NewSerialComm())
	require.NoError(t, err)
	c = New(op)
	s, err = state.New(c.Info(), op, c.Relations(), c.SpectFromPhys())
	require.NoError(t, err)
	return
}

func TestNS2DTendencies(t *testing.T) {
	var (
		c, s = newNS2D(t, 16)
		op   = s.Oper
		tend = map[string]*mat.CDense{"rot_fft": op.NewSpect()}
	)
	var _ model_problems.Solver = c
	{ // Test modes on a single wavenumber shell are a steady Euler solution
		rot := op.NewPhys()
		for iy := 0; iy < op.NYLoc; iy++ {
			for ix := 0; ix < op.NX; ix++ {
				x, y := op.XCoord(ix), op.YCoord(iy)
				rot.Set(iy, ix, math.Sin(2*x)+math.Cos(2*y))
			}
		}
		require.NoError(t, c.InitFromRotFFT(s, op.FFT2D(rot)))
		require.NoError(t, c.TendenciesNonlinear(s.StateSpect(), tend))
		for _, v := range tend["rot_fft"].RawCMatrix().Data {
			assert.InDelta(t, 0, real(v), 1.e-12)
			assert.InDelta(t, 0, imag(v), 1.e-12)
		}
	}
	{ // Test the truncated advection conserves energy and enstrophy
		require.NoError(t, c.InitFromRotFFT(s, op.RandomSpect(5)))
		require.NoError(t, c.TendenciesNonlinear(s.StateSpect(), tend))
		PK, PA, err := model_problems.EnergyTransfer(op, c, s.StateSpect(), tend)
		require.NoError(t, err)
		assert.InDelta(t, 0, PK, 1.e-10)
		assert.Equal(t, 0., PA)
		var (
			Z  float64
			rd = s.Spect("rot_fft").RawCMatrix().Data
			td = tend["rot_fft"].RawCMatrix().Data
		)
		for i := range rd {
			Z += op.HermitianWeight(i/op.NY) * real(rd[i]*complex(real(td[i]), -imag(td[i])))
		}
		assert.InDelta(t, 0, Z, 1.e-9)
	}
	{ // Test missing stage arrays are reported
		assert.Error(t, c.TendenciesNonlinear(s.StateSpect(), map[string]*mat.CDense{}))
	}
}

func TestNS2DEnergy(t *testing.T) {
	var (
		c, s = newNS2D(t, 16)
		op   = s.Oper
	)
	require.NoError(t, c.InitFromRotFFT(s, op.RandomSpect(2)))
	EK, EA, err := c.EnergiesFFT(s)
	require.NoError(t, err)
	assert.Equal(t, 0., mat.Sum(EA))
	{ // Test the spectral energy equals the physical mean of |u|^2/2
		ux, err := s.ComputePhys("ux")
		require.NoError(t, err)
		uy, err := s.ComputePhys("uy")
		require.NoError(t, err)
		e := op.NewPhys()
		e.Apply(func(i, j int, _ float64) float64 {
			return 0.5 * (ux.At(i, j)*ux.At(i, j) + uy.At(i, j)*uy.At(i, j))
		}, e)
		assert.InDelta(t, op.MeanPhys(e), op.SumWavenumbers(EK), 1.e-12)
	}
	{ // Test the energy weight agrees with the energies
		w, potential, err := c.EnergyWeight("rot_fft")
		require.NoError(t, err)
		assert.False(t, potential)
		var (
			E  float64
			rd = s.Spect("rot_fft").RawCMatrix().Data
			wd = w.RawMatrix().Data
		)
		for i, v := range rd {
			E += op.HermitianWeight(i/op.NY) * 0.5 * wd[i] * (real(v)*real(v) + imag(v)*imag(v))
		}
		assert.InDelta(t, op.SumWavenumbers(EK), E, 1.e-12)
		_, _, err = c.EnergyWeight("b_fft")
		assert.ErrorIs(t, err, state.ErrUnknownKey)
	}
	{ // Test a velocity init keeps only the rotational part
		rot := operators.CloneSpect(s.Spect("rot_fft"))
		ux, uy := op.VecFFTFromRotFFT(rot)
		dx, dy := op.VecFFTFromDivFFT(op.RandomSpect(9))
		for i := range ux.RawCMatrix().Data {
			ux.RawCMatrix().Data[i] += dx.RawCMatrix().Data[i]
			uy.RawCMatrix().Data[i] += dy.RawCMatrix().Data[i]
		}
		require.NoError(t, c.InitFromUxUyFFT(s, ux, uy))
		assert.True(t, mat.CEqualApprox(rot, s.Spect("rot_fft"), 1.e-12))
		div, err := s.ComputeSpect("div_fft")
		require.NoError(t, err)
		assert.Equal(t, 0., real(div.At(1, 1)))
	}
}
