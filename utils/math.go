package utils

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense helpers shared by every block. Matrices follow the repo-wide
// convention (features x positions): one column per sequence position.

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func Subtract(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Sub(m, n)
	return o
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

func OnesLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}

// AddBias adds a (r x 1) bias to every column of m.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic("AddBias: bias must be (r x 1)")
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
	return out
}

// RowSumsInto sums m over columns into a (r x 1) vector.
func RowSumsInto(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for j := 0; j < c; j++ {
			s += m.At(i, j)
		}
		out.Set(i, 0, s)
	}
	return out
}

// XavierArray draws fanOut*fanIn values from the Xavier-uniform range
// +-sqrt(6/(fanIn+fanOut)), row-major for a (fanOut x fanIn) matrix.
func XavierArray(rng *rand.Rand, fanOut, fanIn int) []float64 {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	out := make([]float64, fanOut*fanIn)
	for i := range out {
		out[i] = limit * (2*rng.Float64() - 1)
	}
	return out
}

// XavierDense builds a (fanOut x fanIn) Xavier-uniform matrix.
func XavierDense(rng *rand.Rand, fanOut, fanIn int) *mat.Dense {
	return mat.NewDense(fanOut, fanIn, XavierArray(rng, fanOut, fanIn))
}

func MatrixNorm(m *mat.Dense) float64 {
	r, c := m.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// ClipGrads rescales the given gradients so their joint global norm
// does not exceed c. Returns the scale applied (1.0 = untouched).
func ClipGrads(c float64, grads ...*mat.Dense) float64 {
	if c <= 0 {
		return 1.0
	}
	total := 0.0
	for _, g := range grads {
		n := MatrixNorm(g)
		total += n * n
	}
	total = math.Sqrt(total)
	if total <= c {
		return 1.0
	}
	s := c / total
	for _, g := range grads {
		g.Scale(s, g)
	}
	return s
}

// ReluApply is shape-compatible with mat.Dense.Apply.
func ReluApply(i, j int, x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// ReluPrime returns the elementwise derivative given pre-activations.
func ReluPrime(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) > 0 {
				out.Set(i, j, 1)
			}
		}
	}
	return out
}

// LRSchedule implements linear warmup followed by cosine decay.
func LRSchedule(step, warmup, decay int, peak float64) float64 {
	if step <= 0 {
		return 0
	}
	if warmup > 0 && step < warmup {
		return peak * float64(step) / float64(warmup)
	}
	if decay > 0 {
		x := float64(step-warmup) / float64(decay)
		if x > 1 {
			x = 1
		} else if x < 0 {
			x = 0
		}
		return peak * 0.5 * (1 + math.Cos(math.Pi*x))
	}
	return peak
}

// PrintMatrix prints a gonum matrix in a compact form.
func PrintMatrix(m mat.Matrix, name string) {
	r, c := m.Dims()
	fmt.Printf("Matrix %s (%dx%d):\n", name, r, c)
	fa := mat.Formatted(m, mat.Prefix("  "), mat.Squeeze())
	fmt.Printf("%v\n", fa)
}
