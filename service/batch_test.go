package service

import (
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func writeTestImage(t *testing.T, dir, name string) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 120, 150, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	path := filepath.Join(dir, name)
	if ok := gocv.IMWrite(path, img); !ok {
		t.Fatalf("failed to write test image %s", path)
	}
	return path
}

func TestBatchProcessorMixedResults(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(&fakeCoarse{}, &fakeCoarse{}, &queueFine{}, &queueFine{})
	p := NewBatchProcessor(svc, 2)

	jobs := []BatchJob{
		{Filename: "a.jpg", ImagePath: writeTestImage(t, dir, "a.jpg"), Options: ProcessOptions{DetectFaces: true}},
		{Filename: "missing.jpg", ImagePath: filepath.Join(dir, "missing.jpg"), Options: ProcessOptions{DetectFaces: true}},
		{Filename: "b.jpg", ImagePath: writeTestImage(t, dir, "b.jpg"), Options: ProcessOptions{DetectPlates: true}},
	}

	resp := p.Process(jobs)

	if resp.TotalImages != 3 || resp.SuccessfulCount != 2 || resp.FailedCount != 1 {
		t.Errorf("counts = total %d / ok %d / failed %d, want 3/2/1",
			resp.TotalImages, resp.SuccessfulCount, resp.FailedCount)
	}
	if resp.JobID == "" {
		t.Error("job id must be set")
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}

	// Result order follows job order, not completion order.
	for i, want := range []string{"a.jpg", "missing.jpg", "b.jpg"} {
		if resp.Results[i].Filename != want {
			t.Errorf("results[%d].Filename = %q, want %q", i, resp.Results[i].Filename, want)
		}
	}

	if resp.Results[1].Success || resp.Results[1].Error == "" {
		t.Errorf("missing file must fail with an error, got %+v", resp.Results[1])
	}
	if !resp.Results[0].Success || resp.Results[0].Detection == nil {
		t.Errorf("valid image must carry a detection result, got %+v", resp.Results[0])
	}
}

func TestBatchProcessorRedaction(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	svc := newTestService(&fakeCoarse{}, &fakeCoarse{}, &queueFine{}, &queueFine{})
	p := NewBatchProcessor(svc, 1)

	jobs := []BatchJob{{
		Filename:     "car.jpg",
		ImagePath:    writeTestImage(t, dir, "car.jpg"),
		Options:      ProcessOptions{DetectFaces: true, DetectPlates: true},
		EnableRedact: true,
		FaceBlur:     25,
		PlateBlur:    20,
		OutputDir:    outDir,
	}}

	resp := p.Process(jobs)

	if resp.SuccessfulCount != 1 {
		t.Fatalf("expected success, got %+v", resp.Results)
	}
	item := resp.Results[0]
	if item.Redaction == nil {
		t.Fatal("redaction result missing")
	}

	wantPath := filepath.Join(outDir, "car_redacted.jpg")
	if item.Redaction.RedactedImagePath != wantPath {
		t.Errorf("redacted path = %q, want %q", item.Redaction.RedactedImagePath, wantPath)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("redacted image not written: %v", err)
	}
}

func TestBatchProcessorEmptyJobs(t *testing.T) {
	svc := newTestService(&fakeCoarse{}, &fakeCoarse{}, &queueFine{}, &queueFine{})
	p := NewBatchProcessor(svc, 2)

	resp := p.Process(nil)
	if resp.TotalImages != 0 || resp.FailedCount != 0 || len(resp.Results) != 0 {
		t.Errorf("empty batch must aggregate to zero, got %+v", resp)
	}
}
