package model

// Label tags what a detection is.
type Label string

const (
	LabelFace         Label = "face"
	LabelLicensePlate Label = "license_plate"
)

// Detection is a finished detection in full-image pixel coordinates.
type Detection struct {
	BBox       [4]float64 `json:"bbox"` // x1, y1, x2, y2
	Confidence float64    `json:"confidence"`
	Label      Label      `json:"label"`
}

// DetectionResult groups detections by label for one image.
type DetectionResult struct {
	Faces         []Detection `json:"faces"`
	LicensePlates []Detection `json:"license_plates"`
	// Parent-object counts for the sidecar record.
	Persons  int `json:"-"`
	Vehicles int `json:"-"`
}

// SidecarRecord is the persisted per-image output. Field layout is the
// serialization contract: image identifier, dimensions, per-label boxes
// with scores, and object counts.
type SidecarRecord struct {
	Image  string         `json:"image"`
	Size   ImageSize      `json:"size"`
	Faces  []ScoredBox    `json:"faces"`
	Plates []ScoredBox    `json:"license_plates"`
	Counts map[string]int `json:"counts"`
}

type ImageSize struct {
	W int `json:"W"`
	H int `json:"H"`
}

type ScoredBox struct {
	BBox  [4]float64 `json:"bbox"`
	Score float64    `json:"score"`
}

// NewSidecarRecord flattens a DetectionResult into the persisted form.
func NewSidecarRecord(image string, width, height int, res *DetectionResult) *SidecarRecord {
	rec := &SidecarRecord{
		Image:  image,
		Size:   ImageSize{W: width, H: height},
		Faces:  make([]ScoredBox, 0, len(res.Faces)),
		Plates: make([]ScoredBox, 0, len(res.LicensePlates)),
		Counts: map[string]int{
			"faces":          len(res.Faces),
			"license_plates": len(res.LicensePlates),
			"persons":        res.Persons,
			"vehicles":       res.Vehicles,
		},
	}
	for _, d := range res.Faces {
		rec.Faces = append(rec.Faces, ScoredBox{BBox: d.BBox, Score: d.Confidence})
	}
	for _, d := range res.LicensePlates {
		rec.Plates = append(rec.Plates, ScoredBox{BBox: d.BBox, Score: d.Confidence})
	}
	return rec
}
