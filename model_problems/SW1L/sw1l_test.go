package SW1L

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/model_problems"
	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/state"
	"github.com/notargets/gospectral/utils"
)

func newSW1L(t *testing.T, f, c2, beta float64) (c *SW1L, s *state.State) {
	op, err := operators.NewOperators2D(16, 16, 2*math.Pi, 2*math.Pi, 2./3., utils.NewSerialComm())
	require.NoError(t, err)
	c, err = New(op, f, c2, beta)
	require.NoError(t, err)
	s, err = state.New(c.Info(), op, c.Relations(), c.SpectFromPhys())
	require.NoError(t, err)
	return
}

func assertSpectEqual(t *testing.T, expected, actual *mat.CDense, tol float64) {
	t.Helper()
	ed, ad := expected.RawCMatrix().Data, actual.RawCMatrix().Data
	require.Equal(t, len(ed), len(ad))
	for i := range ed {
		assert.InDelta(t, 0, cmplx.Abs(ed[i]-ad[i]), tol, "mode %d", i)
	}
}

func scaled(f *mat.CDense, a float64) *mat.CDense {
	c := operators.CloneSpect(f)
	for i, v := range c.RawCMatrix().Data {
		c.RawCMatrix().Data[i] = complex(a, 0) * v
	}
	return c
}

func TestSW1LConstruction(t *testing.T) {
	op, err := operators.NewOperators2D(8, 8, 1, 1, 1, utils.NewSerialComm())
	require.NoError(t, err)
	_, err = New(op, 1, 0, 0)
	assert.Error(t, err)
	c, _ := newSW1L(t, -2, 9, 0)
	var _ model_problems.Solver = c
	assert.Equal(t, 3., c.MaxWaveSpeed())
	assert.Equal(t, 2., c.MaxLinearFrequency())
}

func TestSW1LInitStrategies(t *testing.T) {
	var (
		c, s = newSW1L(t, 2, 4, 0)
		op   = s.Oper
	)
	{ // Test q and a are recovered from the state they initialize
		var (
			q = scaled(op.RandomSpect(1), 0.1)
			a = scaled(op.RandomSpect(2), 0.1)
		)
		require.NoError(t, c.InitFromQAFFT(s, q, a))
		qBack, err := s.ComputeSpect("q_fft")
		require.NoError(t, err)
		aBack, err := s.ComputeSpect("a_fft")
		require.NoError(t, err)
		assertSpectEqual(t, q, qBack, 1.e-12)
		assertSpectEqual(t, a, aBack, 1.e-12)
		div, err := s.ComputePhys("div")
		require.NoError(t, err)
		assert.InDelta(t, 0, op.MaxAbs(div), 1.e-14)
	}
	{ // Test the q and a inits are the components of the combined init
		var (
			q = scaled(op.RandomSpect(3), 0.1)
			a = scaled(op.RandomSpect(4), 0.1)
		)
		require.NoError(t, c.InitFromQFFT(s, q))
		aBack, _ := s.ComputeSpect("a_fft")
		assertSpectEqual(t, op.NewSpect(), aBack, 1.e-12)
		etaQ := operators.CloneSpect(s.Spect("eta_fft"))
		require.NoError(t, c.InitFromAFFT(s, a))
		qBack, _ := s.ComputeSpect("q_fft")
		assertSpectEqual(t, op.NewSpect(), qBack, 1.e-12)
		etaA := operators.CloneSpect(s.Spect("eta_fft"))
		require.NoError(t, c.InitFromQAFFT(s, q, a))
		sum := operators.CloneSpect(etaQ)
		for i := range sum.RawCMatrix().Data {
			sum.RawCMatrix().Data[i] += etaA.RawCMatrix().Data[i]
		}
		assertSpectEqual(t, sum, s.Spect("eta_fft"), 1.e-14)
	}
	{ // Test a surface displacement is initialized in geostrophic balance
		require.NoError(t, c.InitFromEtaFFT(s, scaled(op.RandomSpect(5), 0.1)))
		aBack, err := s.ComputeSpect("a_fft")
		require.NoError(t, err)
		assertSpectEqual(t, op.NewSpect(), aBack, 1.e-12)
	}
	{ // Test velocities and displacement are stored as given
		var (
			ux, uy = scaled(op.RandomSpect(6), 0.1), scaled(op.RandomSpect(7), 0.1)
			eta    = scaled(op.RandomSpect(8), 0.1)
		)
		require.NoError(t, c.InitFromUxUyEtaFFT(s, ux, uy, eta))
		uxBack, err := s.ComputeSpect("ux_fft")
		require.NoError(t, err)
		assertSpectEqual(t, ux, uxBack, 1.e-12)
		assertSpectEqual(t, eta, s.Spect("eta_fft"), 1.e-14)
		// The physical mirror reproduces the spectral state
		require.NoError(t, s.SyncSpectralFromPhysical())
		assertSpectEqual(t, eta, s.Spect("eta_fft"), 1.e-12)
		uyBack, err := s.ComputeSpect("uy_fft")
		require.NoError(t, err)
		assertSpectEqual(t, uy, uyBack, 1.e-12)
	}
	{ // Test a balanced velocity init has no divergence tendency
		ux, uy := op.VecFFTFromRotFFT(scaled(op.RandomSpect(9), 0.5))
		require.NoError(t, c.InitFromUxUyFFT(s, ux, uy))
		tend := map[string]*mat.CDense{
			"rot_fft": op.NewSpect(), "div_fft": op.NewSpect(), "eta_fft": op.NewSpect(),
		}
		require.NoError(t, c.TendenciesNonlinear(s.StateSpect(), tend))
		op.Dealias(tend["div_fft"])
		assertSpectEqual(t, op.NewSpect(), tend["div_fft"], 1.e-12)
		// The rotational init goes through the same path
		rot := operators.CloneSpect(s.Spect("rot_fft"))
		require.NoError(t, c.InitFromRotFFT(s, rot))
		assertSpectEqual(t, rot, s.Spect("rot_fft"), 1.e-14)
	}
	{ // Test the balanced init is refused on a beta plane
		cb, sb := newSW1L(t, 2, 4, 0.5)
		ux, uy := op.VecFFTFromRotFFT(op.RandomSpect(10))
		assert.ErrorIs(t, cb.InitFromUxUyFFT(sb, ux, uy), state.ErrNotImplemented)
		assert.ErrorIs(t, cb.InitFromRotFFT(sb, op.RandomSpect(10)), state.ErrNotImplemented)
	}
}

func TestSW1LTendenciesAndEnergy(t *testing.T) {
	var (
		c, s = newSW1L(t, 1, 2, 0)
		op   = s.Oper
		tend = map[string]*mat.CDense{
			"rot_fft": op.NewSpect(), "div_fft": op.NewSpect(), "eta_fft": op.NewSpect(),
		}
	)
	{ // Test a flat surface at rest stays at rest
		require.NoError(t, c.InitFromEtaFFT(s, op.NewSpect()))
		require.NoError(t, c.TendenciesNonlinear(s.StateSpect(), tend))
		for _, key := range []string{"rot_fft", "div_fft", "eta_fft"} {
			assertSpectEqual(t, op.NewSpect(), tend[key], 1.e-14)
		}
	}
	{ // Test the linear terms exchange energy between divergence and displacement
		eta := op.NewPhys()
		for iy := 0; iy < op.NYLoc; iy++ {
			for ix := 0; ix < op.NX; ix++ {
				eta.Set(iy, ix, 1.e-3*math.Cos(2*op.XCoord(ix)))
			}
		}
		require.NoError(t, s.InitFromSpect(map[string]*mat.CDense{
			"rot_fft": op.NewSpect(), "div_fft": op.NewSpect(), "eta_fft": op.FFT2D(eta),
		}))
		require.NoError(t, c.TendenciesNonlinear(s.StateSpect(), tend))
		// d(div)/dt = -c2 Laplacian(eta) = c2 k^2 eta
		assert.InDelta(t, 2*4*0.5e-3, real(tend["div_fft"].At(2, 0)), 1.e-15)
		assert.InDelta(t, 0, cmplx.Abs(tend["eta_fft"].At(2, 0)), 1.e-15)
	}
	{ // Test the energies against the physical means
		require.NoError(t, c.InitFromUxUyEtaFFT(s,
			scaled(op.RandomSpect(11), 0.1), scaled(op.RandomSpect(12), 0.1), scaled(op.RandomSpect(13), 0.1)))
		EK, EA, err := c.EnergiesFFT(s)
		require.NoError(t, err)
		var (
			ux, _  = s.ComputePhys("ux")
			uy, _  = s.ComputePhys("uy")
			eta, _ = s.ComputePhys("eta")
			ek, ea = op.NewPhys(), op.NewPhys()
		)
		ek.Apply(func(i, j int, _ float64) float64 {
			return 0.5 * (1 + eta.At(i, j)) * (ux.At(i, j)*ux.At(i, j) + uy.At(i, j)*uy.At(i, j))
		}, ek)
		ea.Apply(func(i, j int, _ float64) float64 {
			return 0.5 * 2 * eta.At(i, j) * eta.At(i, j)
		}, ea)
		assert.InDelta(t, op.MeanPhys(ek), op.SumWavenumbers(EK), 1.e-12)
		assert.InDelta(t, op.MeanPhys(ea), op.SumWavenumbers(EA), 1.e-12)
		_, potential, err := c.EnergyWeight("eta_fft")
		require.NoError(t, err)
		assert.True(t, potential)
	}
	{ // Test derived fields
		h, err := s.ComputePhys("h")
		require.NoError(t, err)
		eta, _ := s.ComputePhys("eta")
		ux, _ := s.ComputePhys("ux")
		Jx, err := s.ComputePhys("Jx")
		require.NoError(t, err)
		assert.InDelta(t, 1+eta.At(2, 3), h.At(2, 3), 1.e-15)
		assert.InDelta(t, h.At(4, 5)*ux.At(4, 5), Jx.At(4, 5), 1.e-15)
		_, err = s.ComputeSpect("Jy_fft")
		assert.NoError(t, err)
	}
}
