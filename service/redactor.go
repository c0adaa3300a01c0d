package service

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/omdwivedi00/Iden-hide/model"
	"gocv.io/x/gocv"
)

// Redactor composites privacy masks onto an image: elliptical blur for
// faces (faces are round, boxes are not) and full rectangular blur
// replacement for plates.
type Redactor struct{}

func NewRedactor() *Redactor {
	return &Redactor{}
}

// oddKernel coerces a blur strength to the next odd kernel size.
func oddKernel(strength int) int {
	if strength%2 == 0 {
		return strength + 1
	}
	return strength
}

// Apply returns a copy of img with every detection redacted. Blur
// strengths must be positive. Detections are composited in ascending
// score order, so where two regions overlap the highest-scoring
// detection's pixels win. The caller owns the returned Mat.
func (r *Redactor) Apply(img gocv.Mat, detections []model.Detection, faceBlur, plateBlur int) (gocv.Mat, error) {
	if faceBlur <= 0 || plateBlur <= 0 {
		return gocv.Mat{}, fmt.Errorf("blur strength must be positive, got face=%d plate=%d", faceBlur, plateBlur)
	}
	if img.Empty() {
		return gocv.Mat{}, fmt.Errorf("redact: empty image")
	}

	ordered := make([]model.Detection, len(detections))
	copy(ordered, detections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence < ordered[j].Confidence
	})

	out := img.Clone()
	for _, d := range ordered {
		switch d.Label {
		case model.LabelFace:
			r.blurEllipse(img, &out, d.BBox, oddKernel(faceBlur))
		case model.LabelLicensePlate:
			r.blurRect(img, &out, d.BBox, oddKernel(plateBlur))
		}
	}
	return out, nil
}

// clampRect converts a float bbox to an integer rect inside the image.
func clampRect(bbox [4]float64, w, h int) image.Rectangle {
	x1 := max(0, int(bbox[0]))
	y1 := max(0, int(bbox[1]))
	x2 := min(w, int(bbox[2]))
	y2 := min(h, int(bbox[3]))
	if x2 <= x1 || y2 <= y1 {
		return image.Rectangle{}
	}
	return image.Rect(x1, y1, x2, y2)
}

// blurEllipse blurs the boxed region of src and writes it into dst
// only where the inscribed ellipse mask is set. Pixels inside the box
// but outside the ellipse keep their dst values.
func (r *Redactor) blurEllipse(src gocv.Mat, dst *gocv.Mat, bbox [4]float64, kernel int) {
	rect := clampRect(bbox, src.Cols(), src.Rows())
	if rect.Empty() {
		return
	}

	// Ellipse center and axes come from the unclamped box so a face
	// cut by the frame edge still blurs the visible part correctly.
	cx := int((bbox[0] + bbox[2]) / 2)
	cy := int((bbox[1] + bbox[3]) / 2)
	ax := int(bbox[2]-bbox[0]) / 2
	ay := int(bbox[3]-bbox[1]) / 2
	if ax < 1 || ay < 1 {
		return
	}

	mask := gocv.NewMatWithSize(src.Rows(), src.Cols(), gocv.MatTypeCV8U)
	defer mask.Close()
	gocv.Ellipse(&mask, image.Pt(cx, cy), image.Pt(ax, ay), 0, 0, 360,
		color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	region := src.Region(rect)
	defer region.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(region, &blurred, image.Pt(kernel, kernel), 0, 0, gocv.BorderDefault)

	maskRegion := mask.Region(rect)
	defer maskRegion.Close()
	dstRegion := dst.Region(rect)
	defer dstRegion.Close()

	blurred.CopyToWithMask(&dstRegion, maskRegion)
}

// blurRect replaces the boxed region of dst with a blurred copy of the
// same region from src.
func (r *Redactor) blurRect(src gocv.Mat, dst *gocv.Mat, bbox [4]float64, kernel int) {
	rect := clampRect(bbox, src.Cols(), src.Rows())
	if rect.Empty() {
		return
	}

	region := src.Region(rect)
	defer region.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(region, &blurred, image.Pt(kernel, kernel), 0, 0, gocv.BorderDefault)

	dstRegion := dst.Region(rect)
	defer dstRegion.Close()
	blurred.CopyTo(&dstRegion)
}
