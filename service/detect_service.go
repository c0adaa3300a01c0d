package service

import (
	"context"
	"fmt"
	"time"

	"github.com/omdwivedi00/Iden-hide/config"
	"github.com/omdwivedi00/Iden-hide/model"
	"github.com/omdwivedi00/Iden-hide/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ProcessOptions selects which pipelines run for one image.
type ProcessOptions struct {
	DetectFaces  bool
	DetectPlates bool
}

// DetectionService runs the face and plate pipelines over single
// images and composites redactions. One invocation is synchronous and
// single-threaded; concurrent invocations are bounded by a semaphore
// and share only the read-only detector backends.
type DetectionService struct {
	faces     *FacePipeline
	plates    *PlatePipeline
	redactor  *Redactor
	semaphore chan struct{}
	queueWait time.Duration
}

func NewDetectionService(personDet, vehicleDet CoarseDetector, faceFine, plateFine FineDetector, cfg *config.Detect) *DetectionService {
	return &DetectionService{
		faces:     NewFacePipeline(personDet, faceFine, cfg),
		plates:    NewPlatePipeline(vehicleDet, plateFine, cfg),
		redactor:  NewRedactor(),
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
		queueWait: time.Duration(cfg.QueueTimeout) * time.Second,
	}
}

// Detect runs the selected pipelines on a decoded image. The pipelines
// are independent: a failing one contributes an empty list and a Warn
// log instead of failing the image.
func (s *DetectionService) Detect(img gocv.Mat, opts ProcessOptions) *model.DetectionResult {
	result := &model.DetectionResult{
		Faces:         []model.Detection{},
		LicensePlates: []model.Detection{},
	}

	if opts.DetectFaces {
		cands, persons, err := s.faces.Detect(img)
		if err != nil {
			utils.Logger.Warn("face pipeline failed", zap.Error(err))
		} else {
			result.Persons = persons
			for _, c := range cands {
				result.Faces = append(result.Faces, toDetection(c, model.LabelFace))
			}
		}
	}

	if opts.DetectPlates {
		cands, vehicles, err := s.plates.Detect(img)
		if err != nil {
			utils.Logger.Warn("plate pipeline failed", zap.Error(err))
		} else {
			result.Vehicles = vehicles
			for _, c := range cands {
				result.LicensePlates = append(result.LicensePlates, toDetection(c, model.LabelLicensePlate))
			}
		}
	}

	return result
}

// ProcessFile decodes an image from disk, runs detection under the
// concurrency limit and returns the sidecar record.
func (s *DetectionService) ProcessFile(imagePath, imageName string, opts ProcessOptions) (*model.SidecarRecord, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to read image: %s", imagePath)
	}
	defer img.Close()

	result := s.Detect(img, opts)
	record := model.NewSidecarRecord(imageName, img.Cols(), img.Rows(), result)

	utils.Logger.Info("image processed",
		zap.String("image", imageName),
		zap.Int("faces", len(result.Faces)),
		zap.Int("license_plates", len(result.LicensePlates)),
		zap.Duration("duration", time.Since(start)))

	return record, nil
}

// RedactFile detects and blurs in one pass, writing the redacted image
// to outputPath. Returns the detections that were applied.
func (s *DetectionService) RedactFile(imagePath, outputPath string, opts ProcessOptions, faceBlur, plateBlur int) (*model.DetectionResult, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to read image: %s", imagePath)
	}
	defer img.Close()

	result := s.Detect(img, opts)

	merged := make([]model.Detection, 0, len(result.Faces)+len(result.LicensePlates))
	merged = append(merged, result.Faces...)
	merged = append(merged, result.LicensePlates...)

	redacted, err := s.redactor.Apply(img, merged, faceBlur, plateBlur)
	if err != nil {
		return nil, err
	}
	defer redacted.Close()

	if ok := gocv.IMWrite(outputPath, redacted); !ok {
		return nil, fmt.Errorf("failed to write redacted image: %s", outputPath)
	}

	utils.Logger.Info("image redacted",
		zap.String("output", outputPath),
		zap.Int("detections_applied", len(merged)),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// acquire takes a processing slot or fails once the queue timeout
// elapses.
func (s *DetectionService) acquire() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.queueWait)
	defer cancel()

	select {
	case s.semaphore <- struct{}{}:
		return func() { <-s.semaphore }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("processing queue is full, retry later")
	}
}

func toDetection(c Candidate, label model.Label) model.Detection {
	return model.Detection{
		BBox:       [4]float64{c.Box.X1, c.Box.Y1, c.Box.X2, c.Box.Y2},
		Confidence: c.Score,
		Label:      label,
	}
}
