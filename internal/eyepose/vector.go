package eyepose

import (
	"math"

	"github.com/golang/geo/r3"
)

type Real = float64

// Mat3 is a 3×3 row-major matrix. It is a plain value so the rotation hot
// path stays allocation-free; the gonum mat types appear only at the fit
// and calibration layers.
type Mat3 struct {
	M [3][3]Real
}

func I3() Mat3 {
	return Mat3{M: [3][3]Real{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}}
}

func (A Mat3) Mul(B Mat3) Mat3 {
	var R Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += A.M[r][k] * B.M[k][c]
			}
			R.M[r][c] = sum
		}
	}
	return R
}

func (A Mat3) Transpose() Mat3 {
	var R Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			R.M[r][c] = A.M[c][r]
		}
	}
	return R
}

func (A Mat3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: A.M[0][0]*v.X + A.M[0][1]*v.Y + A.M[0][2]*v.Z,
		Y: A.M[1][0]*v.X + A.M[1][1]*v.Y + A.M[1][2]*v.Z,
		Z: A.M[2][0]*v.X + A.M[2][1]*v.Y + A.M[2][2]*v.Z,
	}
}

// Rotations about the eye frame axes. In the eye frame X is depth (positive
// toward the back of the eye), Y is horizontal and Z is vertical; torsion
// spins about X, elevation pitches about Y, azimuth yaws about Z.
func rotDepth(a Real) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	M := I3()
	M.M[1][1], M.M[1][2] = c, -s
	M.M[2][1], M.M[2][2] = s, c
	return M
}

func rotHorizontal(a Real) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	M := I3()
	M.M[0][0], M.M[0][2] = c, s
	M.M[2][0], M.M[2][2] = -s, c
	return M
}

func rotVertical(a Real) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	M := I3()
	M.M[0][0], M.M[0][1] = c, -s
	M.M[1][0], M.M[1][1] = s, c
	return M
}

func degToRad(d Real) Real { return d * math.Pi / 180 }
