package SW1L

import (
	"fmt"

	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/state"
)

func (c *SW1L) initFromRotDivEta(s *state.State, rot, div, eta *mat.CDense) error {
	return s.InitFromSpect(map[string]*mat.CDense{
		"rot_fft": rot,
		"div_fft": div,
		"eta_fft": eta,
	})
}

// InitFromEtaFFT sets a surface displacement in geostrophic balance,
// f rot = c2 Laplacian(eta). Without rotation the fluid starts at rest.
func (c *SW1L) InitFromEtaFFT(s *state.State, eta *mat.CDense) error {
	var (
		rot = c.op.NewSpect()
		rd  = rot.RawCMatrix().Data
		ed  = eta.RawCMatrix().Data
		k2  = c.op.K2.RawMatrix().Data
	)
	if c.F != 0 {
		for i := range rd {
			rd[i] = complex(-c.C2*k2[i]/c.F, 0) * ed[i]
		}
	}
	return c.initFromRotDivEta(s, rot, c.op.NewSpect(), eta)
}

func (c *SW1L) InitFromUxUyEtaFFT(s *state.State, ux, uy, eta *mat.CDense) error {
	return c.initFromRotDivEta(s,
		c.op.RotFFTFromVecFFT(ux, uy),
		c.op.DivFFTFromVecFFT(ux, uy),
		eta)
}

func (c *SW1L) InitFromRotFFT(s *state.State, rot *mat.CDense) error {
	ux, uy := c.op.VecFFTFromRotFFT(rot)
	return c.InitFromUxUyFFT(s, ux, uy)
}

// qaInverse returns rot_fft and eta_fft from the potential vorticity and
// the ageostrophic variable, with D = c2 k^2 + f^2:
//   rot = (c2 k^2 q + f a)/D, eta = (a - f q)/D
func (c *SW1L) qaInverse(q, a *mat.CDense) (rot, eta *mat.CDense) {
	rot, eta = c.op.NewSpect(), c.op.NewSpect()
	var (
		rd, ed = rot.RawCMatrix().Data, eta.RawCMatrix().Data
		k2     = c.op.K2.RawMatrix().Data
		f      = complex(c.F, 0)
	)
	for i := range rd {
		D := c.C2*k2[i] + c.F*c.F
		if D == 0 {
			continue
		}
		var qq, aa complex128
		if q != nil {
			qq = q.RawCMatrix().Data[i]
		}
		if a != nil {
			aa = a.RawCMatrix().Data[i]
		}
		rd[i] = (complex(c.C2*k2[i], 0)*qq + f*aa) / complex(D, 0)
		ed[i] = (aa - f*qq) / complex(D, 0)
	}
	return
}

// InitFromQFFT builds the balanced state carrying the potential vorticity q
func (c *SW1L) InitFromQFFT(s *state.State, q *mat.CDense) error {
	rot, eta := c.qaInverse(q, nil)
	return c.initFromRotDivEta(s, rot, c.op.NewSpect(), eta)
}

// InitFromAFFT builds the state with no potential vorticity and the
// ageostrophic variable a
func (c *SW1L) InitFromAFFT(s *state.State, a *mat.CDense) error {
	rot, eta := c.qaInverse(nil, a)
	return c.initFromRotDivEta(s, rot, c.op.NewSpect(), eta)
}

// InitFromQAFFT superposes the q and a components
func (c *SW1L) InitFromQAFFT(s *state.State, q, a *mat.CDense) error {
	var (
		rotQ, etaQ = c.qaInverse(q, nil)
		rotA, etaA = c.qaInverse(nil, a)
	)
	cmplxs.Add(rotQ.RawCMatrix().Data, rotA.RawCMatrix().Data)
	cmplxs.Add(etaQ.RawCMatrix().Data, etaA.RawCMatrix().Data)
	return c.initFromRotDivEta(s, rotQ, c.op.NewSpect(), etaQ)
}

// InitFromUxUyFFT keeps the rotational part of the velocity and balances the
// surface displacement so that the divergence has no tendency
func (c *SW1L) InitFromUxUyFFT(s *state.State, ux, uy *mat.CDense) (err error) {
	if c.Beta != 0 {
		err = fmt.Errorf("%w: balanced surface displacement on a beta plane", state.ErrNotImplemented)
		return
	}
	var (
		op     = c.op
		px, py = op.ProjectionPerp(ux, uy)
	)
	op.Dealias(px)
	op.Dealias(py)
	var (
		rotFFT = op.RotFFTFromVecFFT(px, py)
		eta    = c.etaFFTNoDiv(op.IFFT2D(px), op.IFFT2D(py), op.IFFT2D(rotFFT))
	)
	return c.initFromRotDivEta(s, rotFFT, op.NewSpect(), eta)
}

// etaFFTNoDiv solves the Poisson relation that cancels the divergence
// tendency of a non divergent flow
func (c *SW1L) etaFFTNoDiv(ux, uy, rot *mat.Dense) (eta *mat.CDense) {
	var (
		op                = c.op
		rotUy, rotUx, uu2 = op.NewPhys(), op.NewPhys(), op.NewPhys()
	)
	for i := 0; i < op.NYLoc; i++ {
		for j := 0; j < op.NX; j++ {
			var (
				absRot = rot.At(i, j) + c.F
				vx, vy = ux.At(i, j), uy.At(i, j)
			)
			rotUy.Set(i, j, -absRot*vy)
			rotUx.Set(i, j, absRot*vx)
			uu2.Set(i, j, vx*vx+vy*vy)
		}
	}
	var (
		tempX = op.FFT2D(rotUy)
		tempY = op.FFT2D(rotUx)
		uu2F  = op.FFT2D(uu2)
		tx    = tempX.RawCMatrix().Data
		ty    = tempY.RawCMatrix().Data
		ud    = uu2F.RawCMatrix().Data
		kx    = op.KX.RawMatrix().Data
		ky    = op.KY.RawMatrix().Data
		k2    = op.K2Not0.RawMatrix().Data
	)
	eta = op.NewSpect()
	ed := eta.RawCMatrix().Data
	for i := range ed {
		ed[i] = (complex(0, kx[i]/k2[i])*tx[i] + complex(0, ky[i]/k2[i])*ty[i] - ud[i]/2) / complex(c.C2, 0)
	}
	if op.IKX0 == 0 {
		ed[0] = 0
	}
	op.Dealias(eta)
	return
}
