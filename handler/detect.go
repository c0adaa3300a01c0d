package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/omdwivedi00/Iden-hide/config"
	"github.com/omdwivedi00/Iden-hide/model"
	"github.com/omdwivedi00/Iden-hide/service"
	"github.com/omdwivedi00/Iden-hide/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DetectHandler struct {
	cfg       *config.Config
	redis     *service.RedisService
	detection *service.DetectionService
	batch     *service.BatchProcessor
	fetcher   *service.Fetcher
}

func NewDetectHandler(cfg *config.Config, redis *service.RedisService,
	detection *service.DetectionService, batch *service.BatchProcessor,
	fetcher *service.Fetcher) *DetectHandler {
	return &DetectHandler{
		cfg:       cfg,
		redis:     redis,
		detection: detection,
		batch:     batch,
		fetcher:   fetcher,
	}
}

// Detect handles an image upload and returns the detection set.
func (h *DetectHandler) Detect(c *gin.Context) {
	start := time.Now()

	savePath, md5, ok := h.saveUpload(c)
	if !ok {
		return
	}
	defer h.cleanup(savePath)

	opts := parseOptions(c)
	cacheKey := md5 + optionsSuffix(opts)

	ctx := context.Background()
	if cached, err := h.redis.GetRecord(ctx, cacheKey); err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	} else if cached != nil {
		utils.Logger.Info("cache hit", zap.String("cache_key", cacheKey))
		c.JSON(http.StatusOK, detectResponse(cached, md5, "detection succeeded (cached)", start))
		return
	}

	record, err := h.detection.ProcessFile(savePath, filepath.Base(savePath), opts)
	if err != nil {
		utils.Logger.Error("failed to process image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "image processing failed",
			Error:   err.Error(),
		})
		return
	}

	if err := h.redis.SetRecord(ctx, cacheKey, record); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	c.JSON(http.StatusOK, detectResponse(record, md5, "detection succeeded", start))
}

// Redact handles an image upload, blurs every detection and returns
// the output location.
func (h *DetectHandler) Redact(c *gin.Context) {
	start := time.Now()

	faceBlur, err := parseBlur(c, "face_blur_strength", h.cfg.Redact.FaceBlurStrength)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Success: false, Message: err.Error()})
		return
	}
	plateBlur, err := parseBlur(c, "plate_blur_strength", h.cfg.Redact.PlateBlurStrength)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	savePath, _, ok := h.saveUpload(c)
	if !ok {
		return
	}
	defer h.cleanup(savePath)

	opts := parseOptions(c)

	base := strings.TrimSuffix(filepath.Base(savePath), filepath.Ext(savePath))
	outputPath := filepath.Join(h.cfg.Upload.OutputDir, base+"_redacted.jpg")

	result, err := h.detection.RedactFile(savePath, outputPath, opts, faceBlur, plateBlur)
	if err != nil {
		utils.Logger.Error("failed to redact image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "image redaction failed",
			Error:   err.Error(),
		})
		return
	}

	applied := len(result.Faces) + len(result.LicensePlates)
	c.JSON(http.StatusOK, model.RedactResponse{
		Success:           true,
		Message:           fmt.Sprintf("redacted %d objects", applied),
		RedactedImagePath: outputPath,
		DetectionsApplied: applied,
		ProcessingTimeMS:  msSince(start),
	})
}

// DetectURL downloads a remote image and runs the same detection as
// the upload endpoint.
func (h *DetectHandler) DetectURL(c *gin.Context) {
	start := time.Now()

	var req struct {
		URL                string `json:"url" binding:"required"`
		DetectFace         *bool  `json:"detect_face"`
		DetectLicensePlate *bool  `json:"detect_license_plate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "url is required",
			Error:   err.Error(),
		})
		return
	}

	opts := service.ProcessOptions{DetectFaces: true, DetectPlates: true}
	if req.DetectFace != nil {
		opts.DetectFaces = *req.DetectFace
	}
	if req.DetectLicensePlate != nil {
		opts.DetectPlates = *req.DetectLicensePlate
	}

	localPath, filename, err := h.fetcher.Fetch(c.Request.Context(), req.URL)
	if err != nil {
		c.JSON(http.StatusBadGateway, model.ErrorResponse{
			Success: false,
			Message: "failed to fetch remote image",
			Error:   err.Error(),
		})
		return
	}
	defer h.cleanup(localPath)

	md5, err := utils.FileMD5(localPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "failed to hash image",
			Error:   err.Error(),
		})
		return
	}

	record, err := h.detection.ProcessFile(localPath, filename, opts)
	if err != nil {
		utils.Logger.Error("failed to process remote image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "image processing failed",
			Error:   err.Error(),
		})
		return
	}

	ctx := context.Background()
	if err := h.redis.SetRecord(ctx, md5+optionsSuffix(opts), record); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	c.JSON(http.StatusOK, detectResponse(record, md5, "detection succeeded", start))
}

// Batch handles a multi-file upload processed by the worker pool.
func (h *DetectHandler) Batch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "multipart form required",
			Error:   err.Error(),
		})
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "no images uploaded",
		})
		return
	}

	opts := parseOptions(c)
	enableRedact := c.DefaultPostForm("enable_redact", "false") == "true"

	faceBlur, err := parseBlur(c, "face_blur_strength", h.cfg.Redact.FaceBlurStrength)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Success: false, Message: err.Error()})
		return
	}
	plateBlur, err := parseBlur(c, "plate_blur_strength", h.cfg.Redact.PlateBlurStrength)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Success: false, Message: err.Error()})
		return
	}

	jobs := make([]service.BatchJob, 0, len(files))
	var savedPaths []string
	defer func() {
		for _, p := range savedPaths {
			h.cleanup(p)
		}
	}()

	for _, file := range files {
		savePath, _, saveErr := h.saveFile(file)
		if saveErr != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Success: false,
				Message: fmt.Sprintf("failed to save %s", file.Filename),
				Error:   saveErr.Error(),
			})
			return
		}
		savedPaths = append(savedPaths, savePath)
		jobs = append(jobs, service.BatchJob{
			Filename:     file.Filename,
			ImagePath:    savePath,
			Options:      opts,
			EnableRedact: enableRedact,
			FaceBlur:     faceBlur,
			PlateBlur:    plateBlur,
			OutputDir:    h.cfg.Upload.OutputDir,
		})
	}

	c.JSON(http.StatusOK, h.batch.Process(jobs))
}

// GetResult returns the cached sidecar record for an image MD5.
func (h *DetectHandler) GetResult(c *gin.Context) {
	md5 := c.Param("md5")
	if md5 == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "md5 parameter is missing",
		})
		return
	}

	record, err := h.redis.GetRecord(context.Background(), md5+":f1p1")
	if err != nil {
		utils.Logger.Error("failed to get cached record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "lookup failed",
			Error:   err.Error(),
		})
		return
	}

	if record == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "no detection result for this image",
		})
		return
	}

	c.JSON(http.StatusOK, record)
}

// saveUpload validates and stores the "image" form file, returning its
// path and MD5. On failure it writes the error response itself.
func (h *DetectHandler) saveUpload(c *gin.Context) (savePath, md5 string, ok bool) {
	file, err := c.FormFile("image")
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "please upload an image file",
			Error:   err.Error(),
		})
		return "", "", false
	}

	savePath, md5, err = h.saveFile(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: err.Error(),
		})
		return "", "", false
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.Int64("size", file.Size))

	return savePath, md5, true
}

func (h *DetectHandler) saveFile(file *multipart.FileHeader) (savePath, md5 string, err error) {
	if file.Size > h.cfg.Upload.MaxSize {
		return "", "", fmt.Errorf("file exceeds size limit (%d MB)", h.cfg.Upload.MaxSize/(1024*1024))
	}

	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		return "", "", fmt.Errorf("unsupported file type %q, only JPEG/PNG are accepted", contentType)
	}

	ext := filepath.Ext(file.Filename)
	filename := fmt.Sprintf("%d%s", utils.GenerateID(), ext)
	savePath = filepath.Join(h.cfg.Upload.UploadDir, filename)

	src, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(savePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to save file: %w", err)
	}
	defer dst.Close()

	if _, err := dst.ReadFrom(src); err != nil {
		os.Remove(savePath)
		return "", "", fmt.Errorf("failed to save file: %w", err)
	}

	md5, err = utils.FileMD5(savePath)
	if err != nil {
		os.Remove(savePath)
		return "", "", fmt.Errorf("failed to hash file: %w", err)
	}
	return savePath, md5, nil
}

func (h *DetectHandler) cleanup(path string) {
	if !h.cfg.Upload.CleanupTempFiles || path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		utils.Logger.Warn("failed to delete temp file",
			zap.String("file", path), zap.Error(err))
	}
}

func (h *DetectHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func parseOptions(c *gin.Context) service.ProcessOptions {
	return service.ProcessOptions{
		DetectFaces:  c.DefaultPostForm("detect_face", "true") == "true",
		DetectPlates: c.DefaultPostForm("detect_license_plate", "true") == "true",
	}
}

// optionsSuffix keys the cache per pipeline selection.
func optionsSuffix(opts service.ProcessOptions) string {
	suffix := ":f"
	if opts.DetectFaces {
		suffix += "1"
	} else {
		suffix += "0"
	}
	suffix += "p"
	if opts.DetectPlates {
		suffix += "1"
	} else {
		suffix += "0"
	}
	return suffix
}

func parseBlur(c *gin.Context, field string, fallback int) (int, error) {
	raw := c.DefaultPostForm(field, strconv.Itoa(fallback))
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", field)
	}
	if v < 1 || v > 100 {
		return 0, fmt.Errorf("%s must be between 1 and 100", field)
	}
	return v, nil
}

func detectResponse(record *model.SidecarRecord, md5, message string, start time.Time) model.DetectResponse {
	detections := make([]model.Detection, 0, len(record.Faces)+len(record.Plates))
	for _, b := range record.Faces {
		detections = append(detections, model.Detection{BBox: b.BBox, Confidence: b.Score, Label: model.LabelFace})
	}
	for _, b := range record.Plates {
		detections = append(detections, model.Detection{BBox: b.BBox, Confidence: b.Score, Label: model.LabelLicensePlate})
	}
	return model.DetectResponse{
		Success:          true,
		Message:          message,
		MD5:              md5,
		Detections:       detections,
		TotalFaces:       record.Counts["faces"],
		TotalPlates:      record.Counts["license_plates"],
		ProcessingTimeMS: msSince(start),
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
