package service

import (
	"errors"
	"testing"

	"github.com/omdwivedi00/Iden-hide/model"
	"gocv.io/x/gocv"
)

func newTestService(personDet, vehicleDet CoarseDetector, faceFine, plateFine FineDetector) *DetectionService {
	return NewDetectionService(personDet, vehicleDet, faceFine, plateFine, testDetectOpts())
}

func TestDetectPipelinesAreIndependent(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	// Face pipeline broken, plate pipeline healthy.
	vehicle := Candidate{Box: Box{X1: 100, Y1: 100, X2: 500, Y2: 400}, Score: 0.9}
	plateFine := &queueFine{results: [][]Candidate{{
		{Box: Box{X1: 10, Y1: 10, X2: 110, Y2: 60}, Score: 0.9},
	}}}

	svc := newTestService(
		&fakeCoarse{err: errors.New("person backend down")},
		&fakeCoarse{cands: []Candidate{vehicle}},
		&queueFine{},
		plateFine,
	)

	result := svc.Detect(img, ProcessOptions{DetectFaces: true, DetectPlates: true})

	if result.Faces == nil || len(result.Faces) != 0 {
		t.Errorf("failed face pipeline must yield empty (non-nil) faces, got %v", result.Faces)
	}
	if len(result.LicensePlates) != 1 {
		t.Errorf("plate pipeline must still run, got %d plates", len(result.LicensePlates))
	}
	if result.Vehicles != 1 {
		t.Errorf("vehicle count = %d, want 1", result.Vehicles)
	}
}

func TestDetectRespectsOptions(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	vehicle := Candidate{Box: Box{X1: 100, Y1: 100, X2: 500, Y2: 400}, Score: 0.9}
	vehicleDet := &fakeCoarse{cands: []Candidate{vehicle}}
	plateFine := &queueFine{results: [][]Candidate{{
		{Box: Box{X1: 10, Y1: 10, X2: 110, Y2: 60}, Score: 0.9},
	}}}

	svc := newTestService(&fakeCoarse{}, vehicleDet, &queueFine{}, plateFine)

	result := svc.Detect(img, ProcessOptions{DetectFaces: true, DetectPlates: false})

	if len(result.LicensePlates) != 0 || result.Vehicles != 0 {
		t.Errorf("disabled plate pipeline must not run, got %d plates, %d vehicles",
			len(result.LicensePlates), result.Vehicles)
	}
	if plateFine.calls != 0 {
		t.Errorf("plate fine detector called %d times with plates disabled", plateFine.calls)
	}
}

func TestToDetection(t *testing.T) {
	c := Candidate{Box: Box{X1: 1, Y1: 2, X2: 3, Y2: 4}, Score: 0.75}
	d := toDetection(c, model.LabelFace)

	if d.BBox != [4]float64{1, 2, 3, 4} {
		t.Errorf("bbox = %v", d.BBox)
	}
	if d.Confidence != 0.75 || d.Label != model.LabelFace {
		t.Errorf("confidence/label = %v/%v", d.Confidence, d.Label)
	}
}

func TestAcquireReleasesSlot(t *testing.T) {
	svc := newTestService(&fakeCoarse{}, &fakeCoarse{}, &queueFine{}, &queueFine{})

	r1, err := svc.acquire()
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	r2, err := svc.acquire()
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	r1()
	r2()

	// Both slots freed, the limit is available again.
	r3, err := svc.acquire()
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	r3()
}

func TestAcquireTimesOutWhenFull(t *testing.T) {
	opts := testDetectOpts()
	opts.MaxConcurrent = 1
	opts.QueueTimeout = 1
	svc := NewDetectionService(&fakeCoarse{}, &fakeCoarse{}, &queueFine{}, &queueFine{}, opts)

	release, err := svc.acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := svc.acquire(); err == nil {
		t.Error("expected queue-full error while the only slot is held")
	}
}

func TestProcessFileMissingImage(t *testing.T) {
	svc := newTestService(&fakeCoarse{}, &fakeCoarse{}, &queueFine{}, &queueFine{})

	if _, err := svc.ProcessFile("/nonexistent/image.jpg", "image.jpg", ProcessOptions{DetectFaces: true}); err == nil {
		t.Error("expected error for unreadable image")
	}
}
