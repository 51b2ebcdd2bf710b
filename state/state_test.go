package state

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/operators"
	"github.com/notargets/gospectral/utils"
)

func vorticityInfo() Info {
	return Info{
		Name:           "test.vorticity",
		KeysStateSpect: []string{"rot_fft"},
		KeysStatePhys:  []string{"ux", "uy", "rot"},
		KeysPhysNeeded: []string{"ux", "uy", "rot"},
		KeysComputable: []string{"ux_fft", "uy_fft", "energy"},
	}
}

func newTestState(t *testing.T, calls *int) (s *State) {
	op, err := operators.NewOperators2D(16, 16, 2*math.Pi, 2*math.Pi, 2./3., utils.NewSerialComm())
	require.NoError(t, err)
	s, err = New(vorticityInfo(), op, Relations{
		"energy": func(s *State) (f Field, err error) {
			*calls++
			ux, err := s.ComputePhys("ux")
			if err != nil {
				return
			}
			f.Phys = mat.NewDense(s.Oper.NYLoc, s.Oper.NX, nil)
			f.Phys.MulElem(ux, ux)
			return
		},
	}, nil)
	require.NoError(t, err)
	return
}

func shearFlow(op *operators.Operators2D) (rot *mat.Dense) {
	rot = op.NewPhys()
	for iy := 0; iy < op.NYLoc; iy++ {
		for ix := 0; ix < op.NX; ix++ {
			x, y := op.XCoord(ix), op.YCoord(iy)
			rot.Set(iy, ix, math.Sin(x)*math.Cos(2*y)+0.3*math.Cos(3*x+y))
		}
	}
	return
}

func TestInfoValidation(t *testing.T) {
	info := vorticityInfo()
	assert.NoError(t, info.Validate())
	{ // Test duplicates
		bad := vorticityInfo()
		bad.KeysComputable = []string{"energy", "energy"}
		assert.ErrorIs(t, bad.Validate(), ErrInvalidInfo)
	}
	{ // Test spectral keys must end in _fft
		bad := vorticityInfo()
		bad.KeysStateSpect = []string{"rot"}
		assert.ErrorIs(t, bad.Validate(), ErrInvalidInfo)
	}
	{ // Test physical state must be needed
		bad := vorticityInfo()
		bad.KeysPhysNeeded = []string{"ux", "uy"}
		assert.ErrorIs(t, bad.Validate(), ErrInvalidInfo)
	}
	{ // Test unresolvable computable keys are refused at construction
		op, _ := operators.NewOperators2D(8, 8, 1, 1, 1, utils.NewSerialComm())
		bad := vorticityInfo()
		bad.KeysComputable = []string{"enstrophy"}
		_, err := New(bad, op, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidInfo)
		assert.ErrorIs(t, err, ErrUnknownKey)
	}
}

func TestStateInitAndSync(t *testing.T) {
	var calls int
	s := newTestState(t, &calls)
	op := s.Oper
	{ // Test an incomplete spectral init fails and leaves nothing half set
		err := s.InitFromSpect(map[string]*mat.CDense{"div_fft": op.NewSpect()})
		assert.ErrorIs(t, err, ErrIncomplete)
	}
	{ // Test init from physical fields and the transform round trip
		rot := shearFlow(op)
		require.NoError(t, s.InitFromPhys(map[string]*mat.Dense{
			"ux": op.NewPhys(), "uy": op.NewPhys(), "rot": rot,
		}))
		// All modes are below the truncation so nothing was removed
		assert.True(t, mat.EqualApprox(rot, s.PhysRaw("rot"), 1.e-12))
		// ux = -dpsi/dy with Laplacian(psi) = rot
		ux := s.PhysRaw("ux")
		x, y := op.XCoord(2), op.YCoord(5)
		expected := -0.4*math.Sin(x)*math.Sin(2*y) - 0.03*math.Sin(3*x+y)
		assert.InDelta(t, expected, ux.At(5, 2), 1.e-12)
		before := mat.DenseCopyOf(s.PhysRaw("rot"))
		require.NoError(t, s.SyncSpectralFromPhysical())
		require.NoError(t, s.SyncPhysicalFromSpectral())
		assert.True(t, mat.EqualApprox(before, s.PhysRaw("rot"), 1.e-12))
	}
	{ // Test the mirror goes stale after a spectral write and is resynced on demand
		rotFFT := s.Spect("rot_fft")
		for i := range rotFFT.RawCMatrix().Data {
			rotFFT.RawCMatrix().Data[i] *= 2
		}
		s.MarkSpectModified()
		assert.True(t, s.PhysStale())
		rot, err := s.ComputePhys("rot")
		require.NoError(t, err)
		assert.False(t, s.PhysStale())
		assert.InDelta(t, 2*shearFlow(op).At(3, 4), rot.At(3, 4), 1.e-12)
	}
}

func TestStateComputeCache(t *testing.T) {
	var calls int
	s := newTestState(t, &calls)
	op := s.Oper
	require.NoError(t, s.InitFromPhys(map[string]*mat.Dense{
		"ux": op.NewPhys(), "uy": op.NewPhys(), "rot": shearFlow(op),
	}))
	{ // Test two calls in the same step share the result
		e1, err := s.Compute("energy")
		require.NoError(t, err)
		e2, err := s.Compute("energy")
		require.NoError(t, err)
		assert.Same(t, e1.Phys, e2.Phys)
		assert.Equal(t, 1, calls)
		// A by product of ux_fft is memoized as well
		ux1, _ := s.ComputeSpect("ux_fft")
		uy1, _ := s.ComputeSpect("uy_fft")
		uy2, _ := s.ComputeSpect("uy_fft")
		assert.Same(t, uy1, uy2)
		assert.NotNil(t, ux1)
	}
	{ // Test a step advance recomputes
		e1, _ := s.Compute("energy")
		s.CommitStep()
		e2, err := s.Compute("energy")
		require.NoError(t, err)
		assert.NotSame(t, e1.Phys, e2.Phys)
		assert.Equal(t, 2, calls)
		assert.True(t, mat.EqualApprox(e1.Phys, e2.Phys, 1.e-12))
	}
	{ // Test transforms of resolvable keys and unknown keys
		rot, err := s.ComputePhys("rot")
		require.NoError(t, err)
		eFFT, err := s.ComputeSpect("energy_fft")
		require.NoError(t, err)
		assert.Equal(t, op.NKXLoc, eFFT.RawCMatrix().Rows)
		_, err = s.Compute("enstrophy")
		assert.ErrorIs(t, err, ErrUnknownKey)
		_, err = s.ComputeSpect("rot")
		assert.ErrorIs(t, err, ErrUnknownKey)
		assert.NotNil(t, rot)
	}
}
