package operators

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// GatherSpect assembles the global NKX x NY spectral array on the
// coordinator; other ranks get nil. Collective.
func (op *Operators2D) GatherSpect(f *mat.CDense) (global *mat.CDense) {
	op.checkSpect(f)
	local := make([]complex128, op.NKXLoc*op.NY)
	copy(local, raw(f))
	parts := op.Comm.Gather(local, 0)
	if parts == nil {
		return
	}
	data := make([]complex128, 0, op.NKX*op.NY)
	for _, p := range parts {
		data = append(data, p.([]complex128)...)
	}
	global = mat.NewCDense(op.NKX, op.NY, data)
	return
}

// ScatterSpect distributes a global spectral array held by the coordinator,
// the argument is ignored on other ranks. Collective.
func (op *Operators2D) ScatterSpect(global *mat.CDense) (f *mat.CDense) {
	var data []complex128
	if op.Comm.IsCoordinator() {
		if r, c := global.Dims(); r != op.NKX || c != op.NY {
			panic(fmt.Errorf("global spectral field is %d x %d, grid is %d x %d", r, c, op.NKX, op.NY))
		}
		data = raw(global)
	}
	data = op.Comm.Bcast(data, 0).([]complex128)
	f = op.NewSpect()
	copy(raw(f), data[op.IKX0*op.NY:(op.IKX0+op.NKXLoc)*op.NY])
	return
}

// GatherPhys assembles the global NY x NX physical array on the coordinator.
func (op *Operators2D) GatherPhys(f *mat.Dense) (global *mat.Dense) {
	op.checkPhys(f)
	local := make([]float64, op.NYLoc*op.NX)
	copy(local, f.RawMatrix().Data)
	parts := op.Comm.Gather(local, 0)
	if parts == nil {
		return
	}
	data := make([]float64, 0, op.NX*op.NY)
	for _, p := range parts {
		data = append(data, p.([]float64)...)
	}
	global = mat.NewDense(op.NY, op.NX, data)
	return
}

// ScatterPhys distributes a global physical array held by the coordinator.
func (op *Operators2D) ScatterPhys(global *mat.Dense) (f *mat.Dense) {
	var data []float64
	if op.Comm.IsCoordinator() {
		if r, c := global.Dims(); r != op.NY || c != op.NX {
			panic(fmt.Errorf("global physical field is %d x %d, grid is %d x %d", r, c, op.NY, op.NX))
		}
		data = global.RawMatrix().Data
	}
	data = op.Comm.Bcast(data, 0).([]float64)
	f = op.NewPhys()
	copy(f.RawMatrix().Data, data[op.IY0*op.NX:(op.IY0+op.NYLoc)*op.NX])
	return
}
