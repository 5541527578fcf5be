package viz

import (
	"bytes"
	"strings"
	"testing"

	"github.com/meridian-robotics/voxelslam/internal/voxelmap"
)

func buildMap(t *testing.T, meanOnly bool) *voxelmap.DualVoxelMap {
	t.Helper()
	m, err := voxelmap.New(0.5, 1.0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 40; i++ {
		if err := m.InsertPoint(voxelmap.Point{
			X: float32(i%8) * 0.6,
			Y: float32(i/8) * 0.6,
			Z: float32(i%3) * 0.3,
		}); err != nil {
			t.Fatal(err)
		}
	}
	m.RenderOpts.ShowMeanOnly = meanOnly
	return m
}

func TestRenderHTMLAllPoints(t *testing.T) {
	m := buildMap(t, false)
	var buf bytes.Buffer
	if err := RenderHTML(&buf, m, "test map"); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	if !strings.Contains(html, "echarts") {
		t.Fatal("output does not embed echarts")
	}
	if !strings.Contains(html, "test map") {
		t.Fatal("output does not carry the title")
	}
}

func TestRenderHTMLMeanOnly(t *testing.T) {
	m := buildMap(t, true)
	var buf bytes.Buffer
	if err := RenderHTML(&buf, m, "centroids"); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty render output")
	}
}

func TestRenderHTMLFixedColor(t *testing.T) {
	m := buildMap(t, false)
	m.RenderOpts.Colormap = voxelmap.ColormapNone
	m.RenderOpts.Color = [3]float32{1, 0, 0}
	var buf bytes.Buffer
	if err := RenderHTML(&buf, m, "fixed color"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "#ff0000") {
		t.Fatal("fixed color not applied to the series")
	}
}

func TestRenderHTMLEmptyMap(t *testing.T) {
	m, err := voxelmap.New(0.5, 1.0, 0)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := RenderHTML(&buf, m, "empty"); err != nil {
		t.Fatal(err)
	}
}

func TestRGBHex(t *testing.T) {
	cases := []struct {
		in   [3]float32
		want string
	}{
		{[3]float32{0, 0, 1}, "#0000ff"},
		{[3]float32{1, 1, 1}, "#ffffff"},
		{[3]float32{-1, 2, 0.5}, "#00ff7f"},
	}
	for _, tc := range cases {
		if got := rgbHex(tc.in); got != tc.want {
			t.Errorf("rgbHex(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
