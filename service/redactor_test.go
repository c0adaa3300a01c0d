package service

import (
	"testing"

	"github.com/omdwivedi00/Iden-hide/model"
	"gocv.io/x/gocv"
)

// checkerMat builds a 1px black/white checkerboard. Gaussian blur pulls
// every pixel toward mid-gray, so any blurred pixel is detectable.
func checkerMat(rows, cols int) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var v uint8
			if (x+y)%2 == 0 {
				v = 255
			}
			for c := 0; c < 3; c++ {
				m.SetUCharAt(y, x*3+c, v)
			}
		}
	}
	return m
}

func pixel(m gocv.Mat, x, y int) uint8 {
	return m.GetUCharAt(y, x*3)
}

func TestOddKernel(t *testing.T) {
	tests := []struct{ in, want int }{
		{24, 25},
		{25, 25},
		{1, 1},
		{2, 3},
	}
	for _, tt := range tests {
		if got := oddKernel(tt.in); got != tt.want {
			t.Errorf("oddKernel(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRedactorRejectsNonPositiveBlur(t *testing.T) {
	img := checkerMat(50, 50)
	defer img.Close()

	r := NewRedactor()
	if _, err := r.Apply(img, nil, 0, 20); err == nil {
		t.Error("expected error for zero face blur")
	}
	if _, err := r.Apply(img, nil, 25, -1); err == nil {
		t.Error("expected error for negative plate blur")
	}
}

func TestRedactorFaceEllipse(t *testing.T) {
	img := checkerMat(100, 100)
	defer img.Close()

	face := model.Detection{
		BBox:       [4]float64{20, 20, 80, 80},
		Confidence: 0.9,
		Label:      model.LabelFace,
	}

	r := NewRedactor()
	out, err := r.Apply(img, []model.Detection{face}, 25, 20)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	defer out.Close()

	// Center of the ellipse is blurred away from pure black/white.
	got := pixel(out, 50, 50)
	if got == 0 || got == 255 {
		t.Errorf("ellipse center not blurred, pixel = %d", got)
	}

	// (22, 22) is inside the box but outside the inscribed ellipse
	// (distance 39.6 from center, axes 30). It must be untouched.
	if pixel(out, 22, 22) != pixel(img, 22, 22) {
		t.Error("pixel outside ellipse but inside box was modified")
	}

	// Outside the box entirely.
	if pixel(out, 10, 10) != pixel(img, 10, 10) {
		t.Error("pixel outside detection box was modified")
	}
}

func TestRedactorPlateRect(t *testing.T) {
	img := checkerMat(100, 100)
	defer img.Close()

	plate := model.Detection{
		BBox:       [4]float64{10, 40, 90, 60},
		Confidence: 0.8,
		Label:      model.LabelLicensePlate,
	}

	r := NewRedactor()
	out, err := r.Apply(img, []model.Detection{plate}, 25, 21)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	defer out.Close()

	// Unlike faces, the full rectangle is replaced, corners included.
	for _, pt := range [][2]int{{12, 42}, {50, 50}, {88, 58}} {
		got := pixel(out, pt[0], pt[1])
		if got == 0 || got == 255 {
			t.Errorf("plate pixel (%d,%d) not blurred, value = %d", pt[0], pt[1], got)
		}
	}
	if pixel(out, 50, 70) != pixel(img, 50, 70) {
		t.Error("pixel below plate box was modified")
	}
}

func TestRedactorHighestScoreWinsOverlap(t *testing.T) {
	// White image with a black stripe at rows 30-35. A wide plate blur
	// kernel reaches the stripe from (50,50); the small face kernel
	// does not. If the higher-scoring face is composited last, the
	// overlap pixel keeps the face blur and stays white.
	img := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			var v uint8 = 255
			if y >= 30 && y < 36 {
				v = 0
			}
			for c := 0; c < 3; c++ {
				img.SetUCharAt(y, x*3+c, v)
			}
		}
	}

	plate := model.Detection{
		BBox:       [4]float64{20, 20, 80, 80},
		Confidence: 0.5,
		Label:      model.LabelLicensePlate,
	}
	face := model.Detection{
		BBox:       [4]float64{44, 44, 56, 56},
		Confidence: 0.9,
		Label:      model.LabelFace,
	}

	r := NewRedactor()
	out, err := r.Apply(img, []model.Detection{plate, face}, 3, 51)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	defer out.Close()

	// (50,50): 3px face blur over uniform white stays white; a 51px
	// plate blur would have dragged in the stripe.
	if got := pixel(out, 50, 50); got < 250 {
		t.Errorf("overlap pixel = %d, want face blur (near 255) to win", got)
	}

	// Plate-only area near the stripe is visibly blurred.
	if got := pixel(out, 50, 28); got == 255 {
		t.Error("plate region above stripe not blurred")
	}
}

func TestRedactorIgnoresOutOfBoundsBox(t *testing.T) {
	img := checkerMat(50, 50)
	defer img.Close()

	det := model.Detection{
		BBox:       [4]float64{200, 200, 300, 300},
		Confidence: 0.9,
		Label:      model.LabelFace,
	}

	r := NewRedactor()
	out, err := r.Apply(img, []model.Detection{det}, 25, 20)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	defer out.Close()

	for _, pt := range [][2]int{{0, 0}, {25, 25}, {49, 49}} {
		if pixel(out, pt[0], pt[1]) != pixel(img, pt[0], pt[1]) {
			t.Errorf("pixel (%d,%d) modified by out-of-bounds detection", pt[0], pt[1])
		}
	}
}

func TestRedactorEmptyImage(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	r := NewRedactor()
	if _, err := r.Apply(empty, nil, 25, 20); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestRedactorNoDetectionsReturnsCopy(t *testing.T) {
	img := checkerMat(40, 40)
	defer img.Close()

	r := NewRedactor()
	out, err := r.Apply(img, nil, 25, 20)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	defer out.Close()

	if pixel(out, 7, 13) != pixel(img, 7, 13) {
		t.Error("copy differs from source")
	}

	// The result is an independent Mat, not a view.
	out.SetUCharAt(0, 0, 42)
	if pixel(img, 0, 0) == 42 {
		t.Error("modifying the result mutated the source image")
	}
}
