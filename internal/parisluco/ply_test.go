package parisluco

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPLYAscii(t *testing.T) {
	body := `ply
format ascii 1.0
comment generated by a test
element vertex 3
property float x
property float y
property float z
property float intensity
end_header
1.0 2.0 3.0 0.5
-1.5 0.25 4.0 0.75
0.0 0.0 -2.0 1.0
`
	path := writeFile(t, t.TempDir(), "frame.ply", []byte(body))
	cloud, err := loadPLY(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cloud.Xs) != 3 {
		t.Fatalf("parsed %d points, want 3", len(cloud.Xs))
	}
	if cloud.Xs[1] != -1.5 || cloud.Ys[1] != 0.25 || cloud.Zs[1] != 4.0 {
		t.Fatalf("row 1 = (%v %v %v)", cloud.Xs[1], cloud.Ys[1], cloud.Zs[1])
	}
	if len(cloud.Intensities) != 3 || cloud.Intensities[2] != 1.0 {
		t.Fatalf("intensities = %v", cloud.Intensities)
	}
}

func TestLoadPLYBinaryLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "ply\nformat binary_little_endian 1.0\n")
	fmt.Fprintf(&buf, "element vertex 2\n")
	fmt.Fprintf(&buf, "property float x\nproperty float y\nproperty float z\nproperty double time\n")
	fmt.Fprintf(&buf, "end_header\n")
	rows := []struct {
		x, y, z float32
		tm      float64
	}{
		{1, 2, 3, 0.01},
		{-4, 5.5, -6.25, 0.09},
	}
	for _, r := range rows {
		binary.Write(&buf, binary.LittleEndian, r.x)
		binary.Write(&buf, binary.LittleEndian, r.y)
		binary.Write(&buf, binary.LittleEndian, r.z)
		binary.Write(&buf, binary.LittleEndian, r.tm)
	}

	path := writeFile(t, t.TempDir(), "frame.ply", buf.Bytes())
	cloud, err := loadPLY(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cloud.Xs) != 2 {
		t.Fatalf("parsed %d points, want 2", len(cloud.Xs))
	}
	for i, r := range rows {
		if cloud.Xs[i] != r.x || cloud.Ys[i] != r.y || cloud.Zs[i] != r.z {
			t.Fatalf("row %d = (%v %v %v)", i, cloud.Xs[i], cloud.Ys[i], cloud.Zs[i])
		}
		if math.Abs(cloud.Times[i]-r.tm) > 1e-12 {
			t.Fatalf("row %d time = %v, want %v", i, cloud.Times[i], r.tm)
		}
	}
}

func TestLoadPLYSkipsUnknownProperties(t *testing.T) {
	body := `ply
format ascii 1.0
element vertex 1
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
end_header
1 2 3 255 0 127
`
	path := writeFile(t, t.TempDir(), "frame.ply", []byte(body))
	cloud, err := loadPLY(path)
	if err != nil {
		t.Fatal(err)
	}
	if cloud.Xs[0] != 1 || cloud.Ys[0] != 2 || cloud.Zs[0] != 3 {
		t.Fatalf("point = (%v %v %v)", cloud.Xs[0], cloud.Ys[0], cloud.Zs[0])
	}
}

func TestLoadPLYErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"notply.ply":    "solid something\n",
		"badformat.ply": "ply\nformat binary_big_endian 1.0\nelement vertex 0\nproperty float x\nproperty float y\nproperty float z\nend_header\n",
		"list.ply":      "ply\nformat ascii 1.0\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n3 0 1 2\n",
		"noxyz.ply":     "ply\nformat ascii 1.0\nelement vertex 1\nproperty float a\nend_header\n1\n",
		"truncated.ply": "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nproperty float z\nend_header\n1 2 3\n",
	}
	for name, body := range cases {
		path := writeFile(t, dir, name, []byte(body))
		if _, err := loadPLY(path); err == nil {
			t.Errorf("%s: parsed without error", name)
		}
	}
}
