package model

// DetectResponse is returned by the detect endpoints.
type DetectResponse struct {
	Success          bool        `json:"success"`
	Message          string      `json:"message"`
	MD5              string      `json:"md5,omitempty"`
	Detections       []Detection `json:"detections"`
	TotalFaces       int         `json:"total_faces"`
	TotalPlates      int         `json:"total_license_plates"`
	ProcessingTimeMS float64     `json:"processing_time_ms"`
}

// RedactResponse is returned by the blur endpoint.
type RedactResponse struct {
	Success           bool    `json:"success"`
	Message           string  `json:"message"`
	RedactedImagePath string  `json:"redacted_image_path"`
	DetectionsApplied int     `json:"detections_applied"`
	ProcessingTimeMS  float64 `json:"processing_time_ms"`
}

// BatchItemResult is the per-image outcome of a batch run.
type BatchItemResult struct {
	Success          bool             `json:"success"`
	Filename         string           `json:"filename"`
	Detection        *DetectResponse  `json:"detection,omitempty"`
	Redaction        *RedactResponse  `json:"redaction,omitempty"`
	Error            string           `json:"error,omitempty"`
	ProcessingTimeMS float64          `json:"processing_time_ms"`
}

// BatchResponse aggregates a whole batch job.
type BatchResponse struct {
	Success         bool              `json:"success"`
	Message         string            `json:"message"`
	JobID           string            `json:"job_id"`
	TotalImages     int               `json:"total_images"`
	SuccessfulCount int               `json:"successful_count"`
	FailedCount     int               `json:"failed_count"`
	Results         []BatchItemResult `json:"results"`
	TotalTimeMS     float64           `json:"total_time_ms"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
