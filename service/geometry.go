package service

import "sort"

// Box is an axis-aligned rectangle in image pixel coordinates,
// x1 < x2 and y1 < y2 for any non-degenerate box.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

func (b Box) Area() float64 {
	if b.Empty() {
		return 0
	}
	return b.Width() * b.Height()
}

func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) * 0.5, (b.Y1 + b.Y2) * 0.5
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.X2 <= b.X1 || b.Y2 <= b.Y1 }

// OffsetBy shifts the box by (dx, dy).
func (b Box) OffsetBy(dx, dy float64) Box {
	return Box{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// ClampTo clips the box to [0, w-1] x [0, h-1].
func (b Box) ClampTo(w, h float64) Box {
	return Box{
		X1: clamp(b.X1, 0, w-1),
		Y1: clamp(b.Y1, 0, h-1),
		X2: clamp(b.X2, 0, w-1),
		Y2: clamp(b.Y2, 0, h-1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ExpandBox grows box around its center. With square set, both sides
// become scale*max(w,h); otherwise width and height scale independently.
// The result is clamped to image bounds. A zero-area input yields a
// zero-area result.
func ExpandBox(b Box, scale float64, imgW, imgH float64, square bool) Box {
	cx, cy := b.Center()
	w, h := b.Width(), b.Height()
	if square {
		s := scale * max(w, h)
		w, h = s, s
	} else {
		w, h = scale*w, scale*h
	}
	return Box{
		X1: max(0, cx-w*0.5),
		Y1: max(0, cy-h*0.5),
		X2: min(imgW-1, cx+w*0.5),
		Y2: min(imgH-1, cy+h*0.5),
	}
}

// IoU is intersection-over-union. The epsilon keeps degenerate box
// pairs from dividing by zero.
func IoU(a, b Box) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	iw := max(0, ix2-ix1)
	ih := max(0, iy2-iy1)
	inter := iw * ih

	return inter / (a.Area() + b.Area() - inter + 1e-6)
}

// GreedyNMS suppresses overlapping boxes, highest score first. Score
// ties break by original index so the result is deterministic. Returns
// the kept indices in descending score order.
func GreedyNMS(boxes []Box, scores []float64, iouThr float64) []int {
	if len(boxes) == 0 {
		return nil
	}

	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	suppressed := make([]bool, len(boxes))
	keep := make([]int, 0, len(boxes))
	for pos, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)
		for _, j := range order[pos+1:] {
			if suppressed[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > iouThr {
				suppressed[j] = true
			}
		}
	}
	return keep
}

// HeadBand is the top frac of the person box at full width, where a
// face center is geometrically plausible.
func HeadBand(person Box, frac float64) Box {
	h := max(1, person.Height())
	return Box{X1: person.X1, Y1: person.Y1, X2: person.X2, Y2: person.Y1 + h*frac}
}

// CenterInBand reports whether the face center lies inside the band,
// expanded on all sides by margin pixels.
func CenterInBand(face, band Box, margin float64) bool {
	cx, cy := face.Center()
	return band.X1-margin <= cx && cx <= band.X2+margin &&
		band.Y1-margin <= cy && cy <= band.Y2+margin
}

// RelHeightOK reports whether face height over person height lies in
// [minRel, maxRel]. Heights are floored at one pixel.
func RelHeightOK(face, person Box, minRel, maxRel float64) bool {
	fh := max(1, face.Height())
	ph := max(1, person.Height())
	r := fh / ph
	return minRel <= r && r <= maxRel
}
