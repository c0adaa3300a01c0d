package service

import (
	"fmt"

	"github.com/omdwivedi00/Iden-hide/config"
	"github.com/omdwivedi00/Iden-hide/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// cocoPersonClass is the person class ID in COCO-trained models.
const cocoPersonClass = 0

// FacePipeline finds faces by searching the head region of each coarse
// person detection. A fine detector run on zoomed tiles fires on torso
// and background texture, so candidates are gated to the geometrically
// plausible head band and size range before any of them are kept.
type FacePipeline struct {
	coarse CoarseDetector
	fine   FineDetector
	opts   *config.Detect
}

func NewFacePipeline(coarse CoarseDetector, fine FineDetector, opts *config.Detect) *FacePipeline {
	return &FacePipeline{coarse: coarse, fine: fine, opts: opts}
}

// Detect returns the final face candidates in image coordinates plus
// the number of deduplicated persons found.
func (p *FacePipeline) Detect(img gocv.Mat) ([]Candidate, int, error) {
	imgW, imgH := img.Cols(), img.Rows()
	if imgW <= 0 || imgH <= 0 {
		return nil, 0, fmt.Errorf("face pipeline: empty image")
	}

	raw, err := p.coarse.Detect(img, []int{cocoPersonClass}, p.opts.PersonScoreThreshold)
	if err != nil {
		return nil, 0, fmt.Errorf("person detection: %w", err)
	}

	persons := dedupe(raw, p.opts.PersonNMSIoU)

	best := make([]Candidate, 0, len(persons))
	for _, person := range persons {
		cand, ok := p.bestFaceForPerson(img, person.Box, imgW, imgH)
		if ok {
			best = append(best, cand)
		}
	}

	// Adjacent persons can have overlapping ROIs that both resolve to
	// the same physical face; cross-person NMS collapses those.
	final := dedupe(best, p.opts.FaceNMSIoU)
	return final, len(persons), nil
}

// bestFaceForPerson expands the person into an ROI, tiles it, runs the
// fine detector per tile and keeps the single highest-scoring gated
// candidate. Returns false when nothing survives gating.
func (p *FacePipeline) bestFaceForPerson(img gocv.Mat, person Box, imgW, imgH int) (Candidate, bool) {
	roi := ExpandBox(person, p.opts.ROIScale, float64(imgW), float64(imgH), p.opts.ROISquare)
	band := HeadBand(person, p.opts.HeadFraction)

	tiles := TileROI(roi, imgW, imgH, p.opts.GridX, p.opts.GridY, p.opts.TileOverlap)

	var best Candidate
	found := false
	for _, tile := range tiles {
		cands, err := detectInTile(p.fine, img, tile, p.opts.FaceInputSize,
			p.opts.FaceScoreThreshold, p.opts.FlipAugment)
		if err != nil {
			// A failed tile degrades this person's contribution, never
			// the whole image.
			utils.Logger.Warn("face detection failed on tile", zap.Error(err))
			continue
		}
		for _, c := range cands {
			if !CenterInBand(c.Box, band, p.opts.BandMargin) {
				continue
			}
			if !RelHeightOK(c.Box, person, p.opts.SizeMinRel, p.opts.SizeMaxRel) {
				continue
			}
			if !found || c.Score > best.Score {
				best, found = c, true
			}
		}
	}
	return best, found
}

// dedupe applies greedy NMS to a candidate list, preserving descending
// score order in the result.
func dedupe(cands []Candidate, iouThr float64) []Candidate {
	if len(cands) == 0 {
		return nil
	}
	boxes := make([]Box, len(cands))
	scores := make([]float64, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		scores[i] = c.Score
	}
	keep := GreedyNMS(boxes, scores, iouThr)
	out := make([]Candidate, 0, len(keep))
	for _, i := range keep {
		out = append(out, cands[i])
	}
	return out
}
