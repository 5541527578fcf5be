package geom

import (
	"math"
	"testing"
)

func almostEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestIdentityApply(t *testing.T) {
	x, y, z := Identity().Apply(1, 2, 3)
	if x != 1 || y != 2 || z != 3 {
		t.Fatalf("identity moved the point: (%v %v %v)", x, y, z)
	}
}

func TestFromTranslation(t *testing.T) {
	p := FromTranslation(10, -5, 2)
	x, y, z := p.Apply(1, 1, 1)
	if x != 11 || y != -4 || z != 3 {
		t.Fatalf("translation apply = (%v %v %v)", x, y, z)
	}
	tx, ty, tz := p.Translation()
	if tx != 10 || ty != -5 || tz != 2 {
		t.Fatalf("Translation() = (%v %v %v)", tx, ty, tz)
	}
}

func TestFromEulerYaw(t *testing.T) {
	// 90 degrees yaw maps +X onto +Y.
	p := FromEuler(0, 0, 0, math.Pi/2, 0, 0)
	x, y, z := p.Apply(1, 0, 0)
	if !almostEq(x, 0) || !almostEq(y, 1) || !almostEq(z, 0) {
		t.Fatalf("yaw 90: (1,0,0) -> (%v %v %v), want (0 1 0)", x, y, z)
	}
}

func TestFromEulerPitchRoll(t *testing.T) {
	// 90 degrees pitch maps +X onto -Z.
	p := FromEuler(0, 0, 0, 0, math.Pi/2, 0)
	x, y, z := p.Apply(1, 0, 0)
	if !almostEq(x, 0) || !almostEq(y, 0) || !almostEq(z, -1) {
		t.Fatalf("pitch 90: (1,0,0) -> (%v %v %v), want (0 0 -1)", x, y, z)
	}
	// 90 degrees roll maps +Y onto +Z.
	p = FromEuler(0, 0, 0, 0, 0, math.Pi/2)
	x, y, z = p.Apply(0, 1, 0)
	if !almostEq(x, 0) || !almostEq(y, 0) || !almostEq(z, 1) {
		t.Fatalf("roll 90: (0,1,0) -> (%v %v %v), want (0 0 1)", x, y, z)
	}
}

func TestComposeMatchesSequentialApply(t *testing.T) {
	a := FromEuler(1, 2, 3, 0.4, -0.2, 0.7)
	b := FromEuler(-2, 0.5, 1, -1.1, 0.3, 0.05)
	c := a.Compose(b)

	px, py, pz := 0.3, -4.0, 2.5
	bx, by, bz := b.Apply(px, py, pz)
	wantX, wantY, wantZ := a.Apply(bx, by, bz)
	gotX, gotY, gotZ := c.Apply(px, py, pz)
	if !almostEq(gotX, wantX) || !almostEq(gotY, wantY) || !almostEq(gotZ, wantZ) {
		t.Fatalf("compose apply = (%v %v %v), want (%v %v %v)",
			gotX, gotY, gotZ, wantX, wantY, wantZ)
	}
}

func TestComposeWithIdentity(t *testing.T) {
	a := FromEuler(1, 2, 3, 0.4, -0.2, 0.7)
	if got := Identity().Compose(a); got != a {
		t.Fatalf("identity∘a = %v, want %v", got, a)
	}
	if got := a.Compose(Identity()); got != a {
		t.Fatalf("a∘identity = %v, want %v", got, a)
	}
}

func TestFromMatRejectsNonAffine(t *testing.T) {
	m := Identity().Mat()
	m.Set(3, 0, 0.5)
	if _, err := FromMat(m); err == nil {
		t.Fatal("matrix with a non-affine last row accepted")
	}
}

func TestApplyF32(t *testing.T) {
	p := FromTranslation(1, 2, 3)
	x, y, z := p.ApplyF32(1, 1, 1)
	if x != 2 || y != 3 || z != 4 {
		t.Fatalf("ApplyF32 = (%v %v %v)", x, y, z)
	}
}

func TestSphericalToCartesian(t *testing.T) {
	// Azimuth 0 is +Y (forward); elevation raises +Z.
	x, y, z := SphericalToCartesian(10, 0, 0)
	if !almostEq(x, 0) || !almostEq(y, 10) || !almostEq(z, 0) {
		t.Fatalf("az=0: (%v %v %v)", x, y, z)
	}
	x, y, z = SphericalToCartesian(10, 90, 0)
	if !almostEq(x, 10) || !almostEq(y, 0) || !almostEq(z, 0) {
		t.Fatalf("az=90: (%v %v %v)", x, y, z)
	}
	x, y, z = SphericalToCartesian(10, 0, 90)
	if !almostEq(x, 0) || !almostEq(y, 0) || !almostEq(z, 10) {
		t.Fatalf("elev=90: (%v %v %v)", x, y, z)
	}
}
