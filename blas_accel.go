//go:build blas

package main

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// Building with `-tags blas` routes every gonum matmul through the
// system BLAS via netlib.
func init() {
	blas64.Use(netlib.Implementation{})
}
