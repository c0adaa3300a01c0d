package service

import (
	"fmt"
	"image"

	"github.com/omdwivedi00/Iden-hide/config"
	"github.com/omdwivedi00/Iden-hide/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// COCO vehicle-like classes: car, motorcycle, bus, truck.
var cocoVehicleClasses = []int{2, 3, 5, 7}

// PlatePipeline finds license plates inside coarse vehicle detections.
// Plates are small relative to a vehicle crop, so the fine detector
// runs directly on the exact crop with no tiling. Spurious large-box
// hits on windshields and grilles are culled by an area-fraction rule.
type PlatePipeline struct {
	coarse CoarseDetector
	fine   FineDetector
	opts   *config.Detect
}

func NewPlatePipeline(coarse CoarseDetector, fine FineDetector, opts *config.Detect) *PlatePipeline {
	return &PlatePipeline{coarse: coarse, fine: fine, opts: opts}
}

// Detect returns plate candidates in image coordinates plus the number
// of vehicles found. Default mode keeps at most one plate per vehicle;
// all-plates mode returns every size-filtered survivor.
func (p *PlatePipeline) Detect(img gocv.Mat) ([]Candidate, int, error) {
	imgW, imgH := img.Cols(), img.Rows()
	if imgW <= 0 || imgH <= 0 {
		return nil, 0, fmt.Errorf("plate pipeline: empty image")
	}

	raw, err := p.coarse.Detect(img, cocoVehicleClasses, p.opts.VehicleScoreThreshold)
	if err != nil {
		return nil, 0, fmt.Errorf("vehicle detection: %w", err)
	}

	// Defensive: the coarse model usually suppresses overlaps itself.
	vehicles := dedupe(raw, p.opts.VehicleNMSIoU)

	var plates []Candidate
	for _, vehicle := range vehicles {
		found, err := p.platesForVehicle(img, vehicle.Box, imgW, imgH)
		if err != nil {
			utils.Logger.Warn("plate detection failed for vehicle", zap.Error(err))
			continue
		}
		plates = append(plates, found...)
	}
	return plates, len(vehicles), nil
}

func (p *PlatePipeline) platesForVehicle(img gocv.Mat, vehicle Box, imgW, imgH int) ([]Candidate, error) {
	x1 := max(0, int(vehicle.X1))
	y1 := max(0, int(vehicle.Y1))
	x2 := min(imgW, int(vehicle.X2))
	y2 := min(imgH, int(vehicle.Y2))
	if x2 <= x1 || y2 <= y1 {
		return nil, nil
	}

	crop := img.Region(image.Rect(x1, y1, x2, y2))
	defer crop.Close()

	cands, err := p.fine.Detect(crop)
	if err != nil {
		return nil, err
	}

	vehicleArea := float64(x2-x1) * float64(y2-y1)
	survivors := cands[:0]
	for _, c := range cands {
		if c.Score < p.opts.PlateScoreThreshold {
			continue
		}
		// Boundary is inclusive: exactly max_area_fraction passes.
		if c.Box.Area() > p.opts.MaxAreaFraction*vehicleArea {
			utils.Logger.Debug("plate rejected by size filter",
				zap.Float64("area_fraction", c.Box.Area()/vehicleArea),
				zap.Float64("max_area_fraction", p.opts.MaxAreaFraction))
			continue
		}
		survivors = append(survivors, c)
	}
	if len(survivors) == 0 {
		return nil, nil
	}

	offset := func(c Candidate) Candidate {
		c.Box = c.Box.OffsetBy(float64(x1), float64(y1))
		return c
	}

	if p.opts.AllPlates {
		out := make([]Candidate, 0, len(survivors))
		for _, c := range survivors {
			out = append(out, offset(c))
		}
		return out, nil
	}

	best := survivors[0]
	for _, c := range survivors[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return []Candidate{offset(best)}, nil
}
