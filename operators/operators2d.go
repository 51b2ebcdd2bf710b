package operators

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gospectral/utils"
)

/*
	Operators2D works on a periodic Lx x Ly domain decomposed in slabs:
		- Physical fields are NYLoc x NX row slabs (rows are y) owned by the rank
		- Spectral fields are NKXLoc x NY column slabs (rows are kx >= 0, columns are ky)
	The forward transform goes rfft along x, all to all transpose, cfft along y.
	It is normalized so that the (0,0) coefficient is the spatial mean.
*/
type Operators2D struct {
	NX, NY             int
	NKX                int // NX/2+1 non negative kx
	Lx, Ly             float64
	Dx, Dy             float64
	DeltaKx, DeltaKy   float64
	CoefDealiasing     float64
	Comm               *utils.Comm
	PhysPart           *utils.PartitionMap // Rows y of the physical slabs
	SpectPart          *utils.PartitionMap // Rows kx of the spectral slabs
	IY0, NYLoc         int
	IKX0, NKXLoc       int
	Kxs, Kys           []float64 // Global wavenumber axes
	KX, KY, K2, K2Not0 *mat.Dense
	dealiasMask        []bool // True where the coefficient is truncated
	fftX               *fourier.FFT
	fftY               *fourier.CmplxFFT
	shells             *shellBins
}

func NewOperators2D(nx, ny int, Lx, Ly, coefDealiasing float64, comm *utils.Comm) (op *Operators2D, err error) {
	if nx < 2 || ny < 2 || nx%2 != 0 || ny%2 != 0 {
		err = fmt.Errorf("grid %d x %d must have even, positive dimensions", nx, ny)
		return
	}
	if Lx <= 0 || Ly <= 0 {
		err = fmt.Errorf("domain %g x %g must have positive lengths", Lx, Ly)
		return
	}
	var (
		NP  = comm.Size()
		nkx = nx/2 + 1
	)
	if NP > ny || NP > nkx {
		err = fmt.Errorf("%d processes cannot share %d rows and %d kx columns", NP, ny, nkx)
		return
	}
	op = &Operators2D{
		NX:             nx,
		NY:             ny,
		NKX:            nkx,
		Lx:             Lx,
		Ly:             Ly,
		Dx:             Lx / float64(nx),
		Dy:             Ly / float64(ny),
		DeltaKx:        2 * math.Pi / Lx,
		DeltaKy:        2 * math.Pi / Ly,
		CoefDealiasing: coefDealiasing,
		Comm:           comm,
		PhysPart:       utils.NewPartitionMap(NP, ny),
		SpectPart:      utils.NewPartitionMap(NP, nkx),
		fftX:           fourier.NewFFT(nx),
		fftY:           fourier.NewCmplxFFT(ny),
	}
	var iy1, ikx1 int
	op.IY0, iy1 = op.PhysPart.GetBucketRange(comm.Rank())
	op.IKX0, ikx1 = op.SpectPart.GetBucketRange(comm.Rank())
	op.NYLoc, op.NKXLoc = iy1-op.IY0, ikx1-op.IKX0
	op.initWavenumbers()
	op.shells = newShellBins(op)
	return
}

func (op *Operators2D) initWavenumbers() {
	var (
		kxmax = op.CoefDealiasing * float64(op.NX/2)
		kymax = op.CoefDealiasing * float64(op.NY/2)
	)
	op.Kxs = make([]float64, op.NKX)
	for j := range op.Kxs {
		op.Kxs[j] = float64(j) * op.DeltaKx
	}
	op.Kys = make([]float64, op.NY)
	for i := range op.Kys {
		op.Kys[i] = float64(utils.Wrap(i, op.NY)) * op.DeltaKy
	}
	op.KX = mat.NewDense(op.NKXLoc, op.NY, nil)
	op.KY = mat.NewDense(op.NKXLoc, op.NY, nil)
	op.K2 = mat.NewDense(op.NKXLoc, op.NY, nil)
	op.K2Not0 = mat.NewDense(op.NKXLoc, op.NY, nil)
	op.dealiasMask = make([]bool, op.NKXLoc*op.NY)
	for ik := 0; ik < op.NKXLoc; ik++ {
		j := op.IKX0 + ik
		for iy := 0; iy < op.NY; iy++ {
			kx, ky := op.Kxs[j], op.Kys[iy]
			k2 := kx*kx + ky*ky
			op.KX.Set(ik, iy, kx)
			op.KY.Set(ik, iy, ky)
			op.K2.Set(ik, iy, k2)
			if k2 == 0 {
				k2 = 1
			}
			op.K2Not0.Set(ik, iy, k2)
			n := utils.Wrap(iy, op.NY)
			op.dealiasMask[ik*op.NY+iy] = float64(j) > kxmax || math.Abs(float64(n)) > kymax
		}
	}
}

// NewPhys allocates a zero physical slab
func (op *Operators2D) NewPhys() *mat.Dense {
	return mat.NewDense(op.NYLoc, op.NX, nil)
}

// NewSpect allocates a zero spectral slab
func (op *Operators2D) NewSpect() *mat.CDense {
	return mat.NewCDense(op.NKXLoc, op.NY, nil)
}

// NewSpectReal allocates a zero real array shaped like a spectral slab
func (op *Operators2D) NewSpectReal() *mat.Dense {
	return mat.NewDense(op.NKXLoc, op.NY, nil)
}

func (op *Operators2D) checkPhys(f *mat.Dense) {
	if r, c := f.Dims(); r != op.NYLoc || c != op.NX {
		panic(fmt.Errorf("physical field is %d x %d, slab is %d x %d", r, c, op.NYLoc, op.NX))
	}
}

func (op *Operators2D) checkSpect(f *mat.CDense) {
	if r, c := f.Dims(); r != op.NKXLoc || c != op.NY {
		panic(fmt.Errorf("spectral field is %d x %d, slab is %d x %d", r, c, op.NKXLoc, op.NY))
	}
}

func (op *Operators2D) checkSpectReal(f *mat.Dense) {
	if r, c := f.Dims(); r != op.NKXLoc || c != op.NY {
		panic(fmt.Errorf("spectral array is %d x %d, slab is %d x %d", r, c, op.NKXLoc, op.NY))
	}
}

// FFT2D is collective, every rank must call it
func (op *Operators2D) FFT2D(phys *mat.Dense) (spect *mat.CDense) {
	spect = op.NewSpect()
	op.FFT2DTo(spect, phys)
	return
}

func (op *Operators2D) FFT2DTo(spect *mat.CDense, phys *mat.Dense) {
	op.checkPhys(phys)
	op.checkSpect(spect)
	var (
		NP   = op.Comm.Size()
		send = make([][]complex128, NP)
		row  = make([]complex128, op.NKX)
		col  = make([]complex128, op.NY)
		pd   = phys.RawMatrix()
		sd   = spect.RawCMatrix()
		norm = complex(1/float64(op.NX*op.NY), 0)
	)
	for r := 0; r < NP; r++ {
		send[r] = make([]complex128, op.NYLoc*op.SpectPart.GetBucketDimension(r))
	}
	for iy := 0; iy < op.NYLoc; iy++ {
		op.fftX.Coefficients(row, pd.Data[iy*pd.Stride:iy*pd.Stride+op.NX])
		for r := 0; r < NP; r++ {
			k0, k1 := op.SpectPart.GetBucketRange(r)
			copy(send[r][iy*(k1-k0):(iy+1)*(k1-k0)], row[k0:k1])
		}
	}
	recv := op.Comm.AllToAll(send)
	for ik := 0; ik < op.NKXLoc; ik++ {
		for r := 0; r < NP; r++ {
			y0, y1 := op.PhysPart.GetBucketRange(r)
			for iy := y0; iy < y1; iy++ {
				col[iy] = recv[r][(iy-y0)*op.NKXLoc+ik]
			}
		}
		dst := sd.Data[ik*sd.Stride : ik*sd.Stride+op.NY]
		op.fftY.Coefficients(dst, col)
		for iy := range dst {
			dst[iy] *= norm
		}
	}
}

// IFFT2D is collective, every rank must call it
func (op *Operators2D) IFFT2D(spect *mat.CDense) (phys *mat.Dense) {
	phys = op.NewPhys()
	op.IFFT2DTo(phys, spect)
	return
}

func (op *Operators2D) IFFT2DTo(phys *mat.Dense, spect *mat.CDense) {
	op.checkPhys(phys)
	op.checkSpect(spect)
	var (
		NP   = op.Comm.Size()
		send = make([][]complex128, NP)
		row  = make([]complex128, op.NKX)
		col  = make([]complex128, op.NY)
		pd   = phys.RawMatrix()
		sd   = spect.RawCMatrix()
	)
	for r := 0; r < NP; r++ {
		send[r] = make([]complex128, op.PhysPart.GetBucketDimension(r)*op.NKXLoc)
	}
	for ik := 0; ik < op.NKXLoc; ik++ {
		op.fftY.Sequence(col, sd.Data[ik*sd.Stride:ik*sd.Stride+op.NY])
		for r := 0; r < NP; r++ {
			y0, y1 := op.PhysPart.GetBucketRange(r)
			for iy := y0; iy < y1; iy++ {
				send[r][(iy-y0)*op.NKXLoc+ik] = col[iy]
			}
		}
	}
	recv := op.Comm.AllToAll(send)
	for iy := 0; iy < op.NYLoc; iy++ {
		for r := 0; r < NP; r++ {
			k0, k1 := op.SpectPart.GetBucketRange(r)
			nk := k1 - k0
			copy(row[k0:k1], recv[r][iy*nk:(iy+1)*nk])
		}
		op.fftX.Sequence(pd.Data[iy*pd.Stride:iy*pd.Stride+op.NX], row)
	}
}

// Dealias zeroes, in place, the coefficients beyond the truncation ratio of
// the largest wavenumber along each axis
func (op *Operators2D) Dealias(spect *mat.CDense) {
	op.checkSpect(spect)
	data := spect.RawCMatrix().Data
	for i, truncated := range op.dealiasMask {
		if truncated {
			data[i] = 0
		}
	}
}

// IsTruncated reports whether the local mode (ik, iy) is removed by Dealias
func (op *Operators2D) IsTruncated(ik, iy int) bool {
	return op.dealiasMask[ik*op.NY+iy]
}

// XCoord and YCoord give the physical position of a local grid point
func (op *Operators2D) XCoord(ix int) float64 { return float64(ix) * op.Dx }
func (op *Operators2D) YCoord(iyLoc int) float64 {
	return float64(op.IY0+iyLoc) * op.Dy
}

// HermitianWeight counts the modes a stored coefficient stands for in the
// full Fourier grid: kx and -kx, except for kx = 0 and the Nyquist column
func (op *Operators2D) HermitianWeight(ik int) float64 {
	j := op.IKX0 + ik
	if j == 0 || j == op.NX/2 {
		return 1
	}
	return 2
}

// SumWavenumbers sums a real spectral quantity over the whole Fourier grid,
// collective
func (op *Operators2D) SumWavenumbers(f *mat.Dense) (sum float64) {
	op.checkSpectReal(f)
	var (
		fd = f.RawMatrix()
	)
	for ik := 0; ik < op.NKXLoc; ik++ {
		var colSum float64
		for _, v := range fd.Data[ik*fd.Stride : ik*fd.Stride+op.NY] {
			colSum += v
		}
		sum += op.HermitianWeight(ik) * colSum
	}
	sum = op.Comm.AllReduceSum(sum)
	return
}

// SumWavenumbersShear restricts the sum to the modes with kx = 0
func (op *Operators2D) SumWavenumbersShear(f *mat.Dense) (sum float64) {
	op.checkSpectReal(f)
	if op.IKX0 == 0 {
		fd := f.RawMatrix()
		for _, v := range fd.Data[:op.NY] {
			sum += v
		}
	}
	sum = op.Comm.AllReduceSum(sum)
	return
}

// MaxAbs is the global maximum of |f| over the physical grid, collective
func (op *Operators2D) MaxAbs(phys *mat.Dense) (max float64) {
	op.checkPhys(phys)
	for _, v := range phys.RawMatrix().Data {
		if math.IsNaN(v) {
			max = v
			break
		}
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	max = op.Comm.AllReduceMax(max)
	return
}

// MeanPhys is the global spatial mean, collective
func (op *Operators2D) MeanPhys(phys *mat.Dense) float64 {
	op.checkPhys(phys)
	var sum float64
	for _, v := range phys.RawMatrix().Data {
		sum += v
	}
	return op.Comm.AllReduceSum(sum) / float64(op.NX*op.NY)
}
