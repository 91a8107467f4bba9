package types

import "math"

// Mat3x4 is a row-major 3x4 affine transform (rotation/scale plus
// translation). Layout:
//
//	| m[0] m[1] m[2]  m[3]  |
//	| m[4] m[5] m[6]  m[7]  |
//	| m[8] m[9] m[10] m[11] |
//
// When a Mat3x4 encodes a ray, the translation column (m[3], m[7], m[11])
// is the ray origin and the third basis column applied to +Z is the ray
// direction, i.e. dir = R * (0, 0, 1). This convention is used by every
// node and kernel in the module.
type Mat3x4 [12]float32

// Create an identity transform.
func Mat3x4Ident() Mat3x4 {
	return Mat3x4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// Create a translation transform.
func Mat3x4Translation(t Vec3) Mat3x4 {
	return Mat3x4{
		1, 0, 0, t[0],
		0, 1, 0, t[1],
		0, 0, 1, t[2],
	}
}

// Create a transform from a rotation quaternion and a translation.
func Mat3x4FromQuat(q Quat, t Vec3) Mat3x4 {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.W
	return Mat3x4{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y), t[0],
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x), t[1],
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y), t[2],
	}
}

// Get the translation column.
func (m Mat3x4) Translation() Vec3 {
	return Vec3{m[3], m[7], m[11]}
}

// Apply the full transform to a point.
func (m Mat3x4) ApplyPoint(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2] + m[3],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2] + m[7],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2] + m[11],
	}
}

// Apply the rotation/scale part of the transform to a direction.
func (m Mat3x4) ApplyDir(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2],
	}
}

// Get the ray origin encoded by this transform.
func (m Mat3x4) RayOrigin() Vec3 {
	return m.Translation()
}

// Get the normalized ray direction encoded by this transform.
func (m Mat3x4) RayDir() Vec3 {
	return m.ApplyDir(Vec3{0, 0, 1}).Normalize()
}

// Compose two transforms; the result applies m2 first, then m.
func (m Mat3x4) Mul(m2 Mat3x4) Mat3x4 {
	var out Mat3x4
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			sum := m[row*4+0]*m2[col] + m[row*4+1]*m2[4+col] + m[row*4+2]*m2[8+col]
			if col == 3 {
				sum += m[row*4+3]
			}
			out[row*4+col] = sum
		}
	}
	return out
}

// Invert the affine transform. The 3x3 part is inverted via its adjugate;
// a singular matrix yields the identity.
func (m Mat3x4) Inverse() Mat3x4 {
	det := m[0]*(m[5]*m[10]-m[6]*m[9]) -
		m[1]*(m[4]*m[10]-m[6]*m[8]) +
		m[2]*(m[4]*m[9]-m[5]*m[8])
	if float32(math.Abs(float64(det))) < floatCmpEpsilon {
		return Mat3x4Ident()
	}

	inv := 1.0 / det
	r := Mat3x4{
		(m[5]*m[10] - m[6]*m[9]) * inv, (m[2]*m[9] - m[1]*m[10]) * inv, (m[1]*m[6] - m[2]*m[5]) * inv, 0,
		(m[6]*m[8] - m[4]*m[10]) * inv, (m[0]*m[10] - m[2]*m[8]) * inv, (m[2]*m[4] - m[0]*m[6]) * inv, 0,
		(m[4]*m[9] - m[5]*m[8]) * inv, (m[1]*m[8] - m[0]*m[9]) * inv, (m[0]*m[5] - m[1]*m[4]) * inv, 0,
	}

	t := r.ApplyDir(m.Translation()).Mul(-1)
	r[3], r[7], r[11] = t[0], t[1], t[2]
	return r
}
