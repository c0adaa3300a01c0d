package service

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/omdwivedi00/Iden-hide/model"
	"github.com/omdwivedi00/Iden-hide/utils"
	"go.uber.org/zap"
)

// BatchJob is one image inside a batch request.
type BatchJob struct {
	Filename  string
	ImagePath string
	Options   ProcessOptions

	EnableRedact bool
	FaceBlur     int
	PlateBlur    int
	OutputDir    string
}

// BatchProcessor fans a list of images out to a fixed pool of workers.
// Parallelism lives here, across images; each worker invocation runs
// the synchronous single-image pipeline.
type BatchProcessor struct {
	detection  *DetectionService
	maxWorkers int
}

func NewBatchProcessor(detection *DetectionService, maxWorkers int) *BatchProcessor {
	return &BatchProcessor{detection: detection, maxWorkers: maxWorkers}
}

// Process runs all jobs and returns the aggregated response. Result
// order matches job order regardless of completion order.
func (p *BatchProcessor) Process(jobs []BatchJob) *model.BatchResponse {
	jobID := utils.GenerateJobID()
	start := time.Now()

	utils.Logger.Info("batch started",
		zap.String("job_id", jobID),
		zap.Int("images", len(jobs)),
		zap.Int("workers", p.maxWorkers))

	results := make([]model.BatchItemResult, len(jobs))

	type task struct {
		idx int
		job BatchJob
	}
	tasks := make(chan task)

	var wg sync.WaitGroup
	for w := 0; w < p.maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				results[t.idx] = p.runJob(t.job)
			}
		}()
	}
	for i, job := range jobs {
		tasks <- task{idx: i, job: job}
	}
	close(tasks)
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}

	elapsed := time.Since(start)
	utils.Logger.Info("batch finished",
		zap.String("job_id", jobID),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(jobs)-succeeded),
		zap.Duration("duration", elapsed))

	return &model.BatchResponse{
		Success:         true,
		Message:         fmt.Sprintf("processed %d images, %d succeeded", len(jobs), succeeded),
		JobID:           jobID,
		TotalImages:     len(jobs),
		SuccessfulCount: succeeded,
		FailedCount:     len(jobs) - succeeded,
		Results:         results,
		TotalTimeMS:     float64(elapsed.Milliseconds()),
	}
}

func (p *BatchProcessor) runJob(job BatchJob) model.BatchItemResult {
	start := time.Now()

	record, err := p.detection.ProcessFile(job.ImagePath, job.Filename, job.Options)
	if err != nil {
		return model.BatchItemResult{
			Success:          false,
			Filename:         job.Filename,
			Error:            err.Error(),
			ProcessingTimeMS: msSince(start),
		}
	}

	detection := &model.DetectResponse{
		Success:          true,
		Message:          fmt.Sprintf("detected %d objects", record.Counts["faces"]+record.Counts["license_plates"]),
		Detections:       recordDetections(record),
		TotalFaces:       record.Counts["faces"],
		TotalPlates:      record.Counts["license_plates"],
		ProcessingTimeMS: msSince(start),
	}

	item := model.BatchItemResult{
		Success:   true,
		Filename:  job.Filename,
		Detection: detection,
	}

	if job.EnableRedact {
		redactStart := time.Now()
		base := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
		outputPath := filepath.Join(job.OutputDir, base+"_redacted.jpg")

		result, err := p.detection.RedactFile(job.ImagePath, outputPath, job.Options, job.FaceBlur, job.PlateBlur)
		if err != nil {
			// Redaction failure keeps the detection result usable.
			utils.Logger.Warn("batch redaction failed",
				zap.String("filename", job.Filename), zap.Error(err))
		} else {
			item.Redaction = &model.RedactResponse{
				Success:           true,
				Message:           fmt.Sprintf("redacted %d objects", len(result.Faces)+len(result.LicensePlates)),
				RedactedImagePath: outputPath,
				DetectionsApplied: len(result.Faces) + len(result.LicensePlates),
				ProcessingTimeMS:  msSince(redactStart),
			}
		}
	}

	item.ProcessingTimeMS = msSince(start)
	return item
}

// recordDetections flattens a sidecar record back into the response
// detection list.
func recordDetections(record *model.SidecarRecord) []model.Detection {
	out := make([]model.Detection, 0, len(record.Faces)+len(record.Plates))
	for _, b := range record.Faces {
		out = append(out, model.Detection{BBox: b.BBox, Confidence: b.Score, Label: model.LabelFace})
	}
	for _, b := range record.Plates {
		out = append(out, model.Detection{BBox: b.BBox, Confidence: b.Score, Label: model.LabelLicensePlate})
	}
	return out
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
