package state

import (
	"gonum.org/v1/gonum/mat"
)

// BaseRelations are shared by every variant; a variant overrides an entry
// only where its physics differ
func BaseRelations() Relations {
	return Relations{
		"ux_fft": func(s *State) (f Field, err error) {
			ux, uy, err := s.velocityFFT()
			if err != nil {
				return
			}
			s.Remember("uy_fft", Field{Spect: uy})
			f.Spect = ux
			return
		},
		"uy_fft": func(s *State) (f Field, err error) {
			ux, uy, err := s.velocityFFT()
			if err != nil {
				return
			}
			s.Remember("ux_fft", Field{Spect: ux})
			f.Spect = uy
			return
		},
	}
}

// velocityFFT composes the velocity from rot_fft and, when evolved, div_fft
func (s *State) velocityFFT() (ux, uy *mat.CDense, err error) {
	var (
		rot, div *mat.CDense
	)
	if rot, err = s.ComputeSpect("rot_fft"); err != nil {
		return
	}
	if _, ok := s.spect["div_fft"]; !ok {
		ux, uy = s.Oper.VecFFTFromRotFFT(rot)
		return
	}
	if div, err = s.ComputeSpect("div_fft"); err != nil {
		return
	}
	ux, uy = s.Oper.VecFFTFromRotDivFFT(rot, div)
	return
}

// Remember memoizes a field computed as a by product of another relation
func (s *State) Remember(key string, f Field) {
	if s.isStateKey(key) {
		return
	}
	s.cache[key] = cached{it: s.It, field: f}
}
