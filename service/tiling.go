package service

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// letterboxPad is the gray used to fill letterbox borders.
const letterboxPad = 114

// LetterboxTransform maps between region space and padded-tile space.
type LetterboxTransform struct {
	Scale    float64
	DX       float64
	DY       float64
	ResizedW int
	ResizedH int
}

// Apply maps a region-space point into padded-tile space.
func (t LetterboxTransform) Apply(x, y float64) (float64, float64) {
	return x*t.Scale + t.DX, y*t.Scale + t.DY
}

// Invert maps a padded-tile point back to region space, clamped to the
// resized extent so padding never produces out-of-region coordinates.
func (t LetterboxTransform) Invert(px, py float64) (float64, float64) {
	x := (px - t.DX) / t.Scale
	y := (py - t.DY) / t.Scale
	x = clamp(x, 0, float64(t.ResizedW-1))
	y = clamp(y, 0, float64(t.ResizedH-1))
	return x, y
}

// NewLetterboxTransform computes the aspect-preserving fit of a w x h
// region into a targetSize square with symmetric padding.
func NewLetterboxTransform(w, h, targetSize int) LetterboxTransform {
	r := min(float64(targetSize)/float64(w), float64(targetSize)/float64(h))
	nw := int(math.Round(float64(w) * r))
	nh := int(math.Round(float64(h) * r))
	left := (targetSize - nw) / 2
	top := (targetSize - nh) / 2
	return LetterboxTransform{
		Scale:    r,
		DX:       float64(left),
		DY:       float64(top),
		ResizedW: nw,
		ResizedH: nh,
	}
}

// Letterbox resizes img preserving aspect ratio so the larger side
// equals targetSize and pads the remainder with gray. The caller owns
// the returned Mat.
func Letterbox(img gocv.Mat, targetSize int) (gocv.Mat, LetterboxTransform, error) {
	w, h := img.Cols(), img.Rows()
	if w <= 0 || h <= 0 {
		return gocv.Mat{}, LetterboxTransform{}, fmt.Errorf("letterbox: empty input %dx%d", w, h)
	}

	t := NewLetterboxTransform(w, h, targetSize)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: t.ResizedW, Y: t.ResizedH}, 0, 0, gocv.InterpolationCubic)

	top := int(t.DY)
	left := int(t.DX)
	bottom := targetSize - t.ResizedH - top
	right := targetSize - t.ResizedW - left

	padded := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &padded, top, bottom, left, right, gocv.BorderConstant,
		gocv.NewScalar(letterboxPad, letterboxPad, letterboxPad, 0))
	return padded, t, nil
}

// TileROI splits roi into a gx x gy grid of overlapping tiles in
// row-major order (y outer, x inner). Step is the integer roi dimension
// over the grid dimension; overlap extends each tile by overlapFrac of
// a step on every interior edge. Tiles are clamped to the image and
// zero-area tiles are dropped. An empty ROI yields no tiles.
func TileROI(roi Box, imgW, imgH, gx, gy int, overlapFrac float64) []Box {
	rx1 := max(0, int(roi.X1))
	ry1 := max(0, int(roi.Y1))
	rx2 := min(imgW, int(roi.X2))
	ry2 := min(imgH, int(roi.Y2))
	if rx2 <= rx1 || ry2 <= ry1 {
		return nil
	}

	rw, rh := rx2-rx1, ry2-ry1
	stepX := max(1, rw/gx)
	stepY := max(1, rh/gy)
	ox := int(overlapFrac * float64(stepX))
	oy := int(overlapFrac * float64(stepY))

	tiles := make([]Box, 0, gx*gy)
	for ty := 0; ty < gy; ty++ {
		for tx := 0; tx < gx; tx++ {
			x1 := max(0, rx1+tx*stepX-ox)
			y1 := max(0, ry1+ty*stepY-oy)
			x2 := min(imgW, rx1+(tx+1)*stepX+ox)
			y2 := min(imgH, ry1+(ty+1)*stepY+oy)
			if x2 > x1 && y2 > y1 {
				tiles = append(tiles, Box{X1: float64(x1), Y1: float64(y1), X2: float64(x2), Y2: float64(y2)})
			}
		}
	}
	return tiles
}

// detectInTile crops img at tile, letterboxes the crop to targetSize,
// runs the fine detector and maps its output back to full-image
// coordinates. With flip set, a second pass runs on the horizontally
// mirrored tile and its boxes are mirrored back before inverse-mapping.
func detectInTile(fine FineDetector, img gocv.Mat, tile Box, targetSize int, scoreThr float64, flip bool) ([]Candidate, error) {
	x1, y1 := int(tile.X1), int(tile.Y1)
	x2, y2 := int(tile.X2), int(tile.Y2)
	if x2 <= x1 || y2 <= y1 {
		return nil, nil
	}

	crop := img.Region(image.Rect(x1, y1, x2, y2))
	defer crop.Close()

	padded, t, err := Letterbox(crop, targetSize)
	if err != nil {
		return nil, err
	}
	defer padded.Close()

	raw, err := fine.Detect(padded)
	if err != nil {
		return nil, err
	}

	if flip {
		flipped := gocv.NewMat()
		gocv.Flip(padded, &flipped, 1)
		mirrored, err := fine.Detect(flipped)
		flipped.Close()
		if err != nil {
			return nil, err
		}
		s := float64(targetSize)
		for _, c := range mirrored {
			raw = append(raw, Candidate{
				Box:   Box{X1: s - c.Box.X2, Y1: c.Box.Y1, X2: s - c.Box.X1, Y2: c.Box.Y2},
				Score: c.Score,
			})
		}
	}

	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if c.Score < scoreThr {
			continue
		}
		bx1, by1 := t.Invert(c.Box.X1, c.Box.Y1)
		bx2, by2 := t.Invert(c.Box.X2, c.Box.Y2)
		out = append(out, Candidate{
			Box:   Box{X1: tile.X1 + bx1, Y1: tile.Y1 + by1, X2: tile.X1 + bx2, Y2: tile.Y1 + by2},
			Score: c.Score,
		})
	}
	return out, nil
}
