package output

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
	"go.uber.org/multierr"
)

// createNCF defines the header and creates the netCDF file at path
func createNCF(path string, h *cdf.Header) (ff *os.File, f *cdf.File, err error) {
	h.Define()
	for _, e := range h.Check() {
		err = multierr.Append(err, e)
	}
	if err != nil {
		return
	}
	if ff, err = os.Create(path); err != nil {
		return
	}
	if f, err = cdf.Create(ff, h); err != nil {
		ff.Close()
	}
	return
}

// closeNCF updates the record count and closes the file
func closeNCF(ff *os.File) error {
	return multierr.Append(cdf.UpdateNumRecs(ff), ff.Close())
}

func writeNCF(f *cdf.File, name string, data any) (err error) {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	if _, err = w.Write(data); err != nil {
		err = fmt.Errorf("unable to write %s: %w", name, err)
	}
	return
}

func readNCF(f *cdf.File, name string) (data any, err error) {
	dims := f.Header.Lengths(name)
	if dims == nil {
		err = fmt.Errorf("no variable %s", name)
		return
	}
	nread := 1
	for _, dim := range dims {
		nread *= dim
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(nread)
	if _, err = r.Read(buf); err != nil {
		err = fmt.Errorf("unable to read %s: %w", name, err)
		return
	}
	data = buf
	return
}

func readFloat64s(f *cdf.File, name string) (v []float64, err error) {
	var data any
	if data, err = readNCF(f, name); err != nil {
		return
	}
	var ok bool
	if v, ok = data.([]float64); !ok {
		err = fmt.Errorf("variable %s holds %T, not float64", name, data)
	}
	return
}

func readInt32s(f *cdf.File, name string) (v []int32, err error) {
	var data any
	if data, err = readNCF(f, name); err != nil {
		return
	}
	var ok bool
	if v, ok = data.([]int32); !ok {
		err = fmt.Errorf("variable %s holds %T, not int32", name, data)
	}
	return
}

func attrFloat64(f *cdf.File, name string) (v float64, err error) {
	a, ok := f.Header.GetAttribute("", name).([]float64)
	if !ok || len(a) == 0 {
		err = fmt.Errorf("no float attribute %s", name)
		return
	}
	v = a[0]
	return
}

func attrInt(f *cdf.File, name string) (v int, err error) {
	a, ok := f.Header.GetAttribute("", name).([]int32)
	if !ok || len(a) == 0 {
		err = fmt.Errorf("no integer attribute %s", name)
		return
	}
	v = int(a[0])
	return
}

func attrString(f *cdf.File, name string) (v string, err error) {
	var ok bool
	if v, ok = f.Header.GetAttribute("", name).(string); !ok {
		err = fmt.Errorf("no string attribute %s", name)
	}
	return
}
