package service

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Candidate is one raw (box, score) pair from a detector, in the
// coordinate space of the image it was given.
type Candidate struct {
	Box   Box
	Score float64
}

// CoarseDetector locates parent objects (persons, vehicles) on a full
// image. classes restricts output to the given class IDs; an empty
// slice means all classes.
type CoarseDetector interface {
	Detect(img gocv.Mat, classes []int, scoreThr float64) ([]Candidate, error)
}

// FineDetector locates small targets (faces, plates) on a cropped or
// letterboxed region. Stateless per call.
type FineDetector interface {
	Detect(region gocv.Mat) ([]Candidate, error)
}

// YOLONet wraps a YOLOv8-style ONNX network loaded through the OpenCV
// DNN module. It serves both as a CoarseDetector for full frames and,
// via FineAdapter, as a FineDetector for region crops.
//
// SetInput/Forward mutate network state, so concurrent callers are
// serialized on a mutex; model weights themselves are read-only.
type YOLONet struct {
	mu        sync.Mutex
	net       gocv.Net
	inputSize int
}

// NewYOLONet loads an ONNX model from disk.
func NewYOLONet(modelPath string, inputSize int) (*YOLONet, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model: %s", modelPath)
	}
	return &YOLONet{net: net, inputSize: inputSize}, nil
}

func (y *YOLONet) Close() error {
	return y.net.Close()
}

// Detect runs one forward pass and returns candidates in img pixel
// coordinates, filtered by class and score.
func (y *YOLONet) Detect(img gocv.Mat, classes []int, scoreThr float64) ([]Candidate, error) {
	w, h := img.Cols(), img.Rows()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("detect: empty input %dx%d", w, h)
	}

	// Pad to a top-left-anchored square so a single scale maps the
	// network output back to pixels.
	maxDim := max(w, h)
	square := gocv.NewMatWithSize(maxDim, maxDim, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, w, h))
	img.CopyTo(&roi)
	roi.Close()

	scale := float64(maxDim) / float64(y.inputSize)

	blob := gocv.BlobFromImage(square, 1.0/255.0,
		image.Pt(y.inputSize, y.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.mu.Lock()
	y.net.SetInput(blob, "")
	out := y.net.Forward("")
	y.mu.Unlock()
	defer out.Close()

	cands := parseYOLOOutput(out, scale, classes, scoreThr)

	// Drop anything the square padding pushed outside the real frame.
	kept := cands[:0]
	fw, fh := float64(w), float64(h)
	for _, c := range cands {
		b := c.Box.ClampTo(fw, fh)
		if !b.Empty() {
			c.Box = b
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// parseYOLOOutput decodes a [1, 4+nc, N] YOLOv8 output tensor. Rows
// 0..3 are cx, cy, w, h; the rest are per-class scores.
func parseYOLOOutput(out gocv.Mat, scale float64, classes []int, scoreThr float64) []Candidate {
	dims := out.Size()
	if len(dims) != 3 {
		return nil
	}
	numRows := dims[1]
	numCols := dims[2]
	numClasses := numRows - 4
	if numClasses < 1 {
		return nil
	}

	wanted := func(cls int) bool {
		if len(classes) == 0 {
			return true
		}
		for _, c := range classes {
			if c == cls {
				return true
			}
		}
		return false
	}

	var cands []Candidate
	for col := 0; col < numCols; col++ {
		bestCls, bestScore := -1, float32(0)
		for cls := 0; cls < numClasses; cls++ {
			s := out.GetFloatAt3(0, 4+cls, col)
			if s > bestScore {
				bestScore, bestCls = s, cls
			}
		}
		if float64(bestScore) < scoreThr || !wanted(bestCls) {
			continue
		}

		cx := float64(out.GetFloatAt3(0, 0, col))
		cy := float64(out.GetFloatAt3(0, 1, col))
		bw := float64(out.GetFloatAt3(0, 2, col))
		bh := float64(out.GetFloatAt3(0, 3, col))

		cands = append(cands, Candidate{
			Box: Box{
				X1: (cx - bw/2) * scale,
				Y1: (cy - bh/2) * scale,
				X2: (cx + bw/2) * scale,
				Y2: (cy + bh/2) * scale,
			},
			Score: float64(bestScore),
		})
	}
	return cands
}

// FineAdapter exposes a YOLONet as a FineDetector with a fixed score
// floor. Class filtering does not apply to single-class fine models.
type FineAdapter struct {
	Net      *YOLONet
	ScoreThr float64
}

func (f *FineAdapter) Detect(region gocv.Mat) ([]Candidate, error) {
	return f.Net.Detect(region, nil, f.ScoreThr)
}

// CascadeFaceDetector is the fallback face backend when no ONNX face
// model is configured. Haar cascades report no confidence, so every
// hit carries score 1.0.
type CascadeFaceDetector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

func NewCascadeFaceDetector(cascadePath string) (*CascadeFaceDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade: %s", cascadePath)
	}
	return &CascadeFaceDetector{classifier: classifier}, nil
}

func (c *CascadeFaceDetector) Close() error {
	return c.classifier.Close()
}

func (c *CascadeFaceDetector) Detect(region gocv.Mat) ([]Candidate, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	c.mu.Lock()
	rects := c.classifier.DetectMultiScale(gray)
	c.mu.Unlock()

	cands := make([]Candidate, 0, len(rects))
	for _, r := range rects {
		cands = append(cands, Candidate{
			Box: Box{
				X1: float64(r.Min.X), Y1: float64(r.Min.Y),
				X2: float64(r.Max.X), Y2: float64(r.Max.Y),
			},
			Score: 1.0,
		})
	}
	return cands, nil
}
