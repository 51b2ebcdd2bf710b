package operators

import (
	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"
)

// The velocity derives from a streamfunction psi and a potential chi:
// ux = -d(psi)/dy + d(chi)/dx, uy = d(psi)/dx + d(chi)/dy, so that
// rot = Laplacian(psi) and div = Laplacian(chi).

// spectLoop applies fn to every local mode with its wavenumbers
func (op *Operators2D) spectLoop(fn func(i int, kx, ky, k2 float64)) {
	var (
		kx, ky, k2 = op.KX.RawMatrix().Data, op.KY.RawMatrix().Data, op.K2Not0.RawMatrix().Data
	)
	for i := range kx {
		fn(i, kx[i], ky[i], k2[i])
	}
}

func raw(f *mat.CDense) []complex128 {
	return f.RawCMatrix().Data
}

// RotFFTFromVecFFT computes i*kx*vy - i*ky*vx
func (op *Operators2D) RotFFTFromVecFFT(vx, vy *mat.CDense) (rot *mat.CDense) {
	op.checkSpect(vx)
	op.checkSpect(vy)
	rot = op.NewSpect()
	r, x, y := raw(rot), raw(vx), raw(vy)
	op.spectLoop(func(i int, kx, ky, _ float64) {
		r[i] = complex(0, kx)*y[i] - complex(0, ky)*x[i]
	})
	return
}

// DivFFTFromVecFFT computes i*kx*vx + i*ky*vy
func (op *Operators2D) DivFFTFromVecFFT(vx, vy *mat.CDense) (div *mat.CDense) {
	op.checkSpect(vx)
	op.checkSpect(vy)
	div = op.NewSpect()
	d, x, y := raw(div), raw(vx), raw(vy)
	op.spectLoop(func(i int, kx, ky, _ float64) {
		d[i] = complex(0, kx)*x[i] + complex(0, ky)*y[i]
	})
	return
}

// VecFFTFromRotFFT inverts the rotational relation, the result is divergence free
// and has no mean
func (op *Operators2D) VecFFTFromRotFFT(rot *mat.CDense) (ux, uy *mat.CDense) {
	op.checkSpect(rot)
	ux, uy = op.NewSpect(), op.NewSpect()
	x, y, r := raw(ux), raw(uy), raw(rot)
	op.spectLoop(func(i int, kx, ky, k2 float64) {
		x[i] = complex(0, ky/k2) * r[i]
		y[i] = complex(0, -kx/k2) * r[i]
	})
	if op.IKX0 == 0 {
		x[0], y[0] = 0, 0
	}
	return
}

// VecFFTFromDivFFT inverts the divergence relation, the result is curl free
// and has no mean
func (op *Operators2D) VecFFTFromDivFFT(div *mat.CDense) (ux, uy *mat.CDense) {
	op.checkSpect(div)
	ux, uy = op.NewSpect(), op.NewSpect()
	x, y, d := raw(ux), raw(uy), raw(div)
	op.spectLoop(func(i int, kx, ky, k2 float64) {
		x[i] = complex(0, -kx/k2) * d[i]
		y[i] = complex(0, -ky/k2) * d[i]
	})
	if op.IKX0 == 0 {
		x[0], y[0] = 0, 0
	}
	return
}

func (op *Operators2D) VecFFTFromRotDivFFT(rot, div *mat.CDense) (ux, uy *mat.CDense) {
	ux, uy = op.VecFFTFromRotFFT(rot)
	dx, dy := op.VecFFTFromDivFFT(div)
	cmplxs.Add(raw(ux), raw(dx))
	cmplxs.Add(raw(uy), raw(dy))
	return
}

// DecomposeVector splits a vector into its rotational and divergent parts.
// The mean (k = 0) stays with the rotational part so that the parts sum to
// the input.
func (op *Operators2D) DecomposeVector(vx, vy *mat.CDense) (rotX, rotY, divX, divY *mat.CDense) {
	divX, divY = op.VecFFTFromDivFFT(op.DivFFTFromVecFFT(vx, vy))
	rotX, rotY = CloneSpect(vx), CloneSpect(vy)
	cmplxs.Sub(raw(rotX), raw(divX))
	cmplxs.Sub(raw(rotY), raw(divY))
	return
}

// ProjectionPerp removes the divergent part of a vector
func (op *Operators2D) ProjectionPerp(vx, vy *mat.CDense) (px, py *mat.CDense) {
	px, py, _, _ = op.DecomposeVector(vx, vy)
	return
}

// GradFFTFromFFT computes the spectral gradient i*k*f
func (op *Operators2D) GradFFTFromFFT(f *mat.CDense) (px, py *mat.CDense) {
	op.checkSpect(f)
	px, py = op.NewSpect(), op.NewSpect()
	x, y, ff := raw(px), raw(py), raw(f)
	op.spectLoop(func(i int, kx, ky, _ float64) {
		x[i] = complex(0, kx) * ff[i]
		y[i] = complex(0, ky) * ff[i]
	})
	return
}

// CloneSpect returns a deep copy
func CloneSpect(f *mat.CDense) (c *mat.CDense) {
	r, cols := f.Dims()
	data := make([]complex128, r*cols)
	copy(data, raw(f))
	c = mat.NewCDense(r, cols, data)
	return
}

func CopySpect(dst, src *mat.CDense) {
	copy(raw(dst), raw(src))
}
