package clocktrack

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PSDTolerance is the negative eigenvalue, relative to the largest one, that
// CheckCovariance still accepts as positive semidefinite.
const PSDTolerance = 1e-9

// CovarianceReport describes the numerical health of a covariance matrix.
type CovarianceReport struct {
	MinEigenvalue float64
	MaxEigenvalue float64
	// Asymmetry is the largest |P[i][j] - P[j][i]| relative to the largest
	// diagonal element.
	Asymmetry float64
	Finite    bool
	PSD       bool
}

// Healthy reports whether the covariance is finite, symmetric to within
// tolerance and positive semidefinite.
func (r CovarianceReport) Healthy() bool {
	return r.Finite && r.PSD && r.Asymmetry <= PSDTolerance
}

// CheckCovariance inspects P. The Update step uses the simple (I-KH)P form,
// which can drift away from symmetric positive semidefinite over long runs;
// this check reports such drift without correcting it.
func CheckCovariance(P Matrix) CovarianceReport {
	var r CovarianceReport

	r.Finite = true
	var scale float64
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			if math.IsNaN(P[i][j]) || math.IsInf(P[i][j], 0) {
				r.Finite = false
			}
		}
		scale = math.Max(scale, math.Abs(P[i][i]))
	}
	if !r.Finite {
		return r
	}

	var asym float64
	data := make([]float64, 0, Dim*Dim)
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			asym = math.Max(asym, math.Abs(P[i][j]-P[j][i]))
			data = append(data, 0.5*(P[i][j]+P[j][i]))
		}
	}
	if scale > 0 {
		r.Asymmetry = asym / scale
	} else {
		r.Asymmetry = asym
	}

	var es mat.EigenSym
	if ok := es.Factorize(mat.NewSymDense(Dim, data), false); !ok {
		return r
	}
	vals := es.Values(nil)
	r.MinEigenvalue = vals[0]
	r.MaxEigenvalue = vals[len(vals)-1]
	r.PSD = r.MinEigenvalue >= -PSDTolerance*math.Max(math.Abs(r.MaxEigenvalue), math.SmallestNonzeroFloat64)
	return r
}
