package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid SE(3) transform mapping sensor-frame coordinates into a
// parent frame. T is 4x4 row-major (m00..m03, m10..m13, m20..m23,
// m30..m33); the last row is always 0 0 0 1.
type Pose struct {
	T [16]float64
}

// Identity returns the identity transform.
func Identity() Pose {
	return Pose{T: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// FromTranslation returns a pure translation.
func FromTranslation(x, y, z float64) Pose {
	p := Identity()
	p.T[3] = x
	p.T[7] = y
	p.T[11] = z
	return p
}

// FromEuler builds a pose from a translation and yaw/pitch/roll angles in
// radians, composed in ZYX order: yaw about +Z, then pitch about +Y, then
// roll about +X.
func FromEuler(x, y, z, yaw, pitch, roll float64) Pose {
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cr, sr := math.Cos(roll), math.Sin(roll)

	return Pose{T: [16]float64{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr, x,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr, y,
		-sp, cp * sr, cp * cr, z,
		0, 0, 0, 1,
	}}
}

// Apply transforms the point (x, y, z) into the parent frame.
func (p Pose) Apply(x, y, z float64) (wx, wy, wz float64) {
	t := &p.T
	wx = t[0]*x + t[1]*y + t[2]*z + t[3]
	wy = t[4]*x + t[5]*y + t[6]*z + t[7]
	wz = t[8]*x + t[9]*y + t[10]*z + t[11]
	return
}

// ApplyF32 is Apply over float32 coordinates, converting through float64
// for the arithmetic.
func (p Pose) ApplyF32(x, y, z float32) (wx, wy, wz float32) {
	fx, fy, fz := p.Apply(float64(x), float64(y), float64(z))
	return float32(fx), float32(fy), float32(fz)
}

// Translation returns the translation component.
func (p Pose) Translation() (x, y, z float64) {
	return p.T[3], p.T[7], p.T[11]
}

// Compose returns p∘q: the transform applying q first, then p.
func (p Pose) Compose(q Pose) Pose {
	var out mat.Dense
	out.Mul(p.Mat(), q.Mat())
	r, err := FromMat(&out)
	if err != nil {
		// Both inputs carry a 0 0 0 1 last row, so the product does too.
		panic(err)
	}
	return r
}

// Mat returns the pose as a dense 4x4 gonum matrix.
func (p Pose) Mat() *mat.Dense {
	d := make([]float64, 16)
	copy(d, p.T[:])
	return mat.NewDense(4, 4, d)
}

// FromMat builds a Pose from a 4x4 matrix. The last row must be 0 0 0 1 up
// to floating-point error.
func FromMat(m mat.Matrix) (Pose, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return Pose{}, fmt.Errorf("pose matrix must be 4x4, got %dx%d", r, c)
	}
	const eps = 1e-9
	if math.Abs(m.At(3, 0)) > eps || math.Abs(m.At(3, 1)) > eps ||
		math.Abs(m.At(3, 2)) > eps || math.Abs(m.At(3, 3)-1) > eps {
		return Pose{}, fmt.Errorf("pose matrix last row is not 0 0 0 1")
	}
	var p Pose
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			p.T[i*4+j] = m.At(i, j)
		}
	}
	// Force the exact affine row so composition chains stay rigid.
	p.T[12], p.T[13], p.T[14], p.T[15] = 0, 0, 0, 1
	return p, nil
}
