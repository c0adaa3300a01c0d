package main

import (
	"context"
	"fmt"
	"os"

	"github.com/omdwivedi00/Iden-hide/config"
	"github.com/omdwivedi00/Iden-hide/handler"
	"github.com/omdwivedi00/Iden-hide/middleware"
	"github.com/omdwivedi00/Iden-hide/service"
	"github.com/omdwivedi00/Iden-hide/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg := config.New()

	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting iden-hide server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	for _, dir := range []string{cfg.Upload.UploadDir, cfg.Upload.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			utils.Logger.Fatal("failed to create directory",
				zap.String("dir", dir), zap.Error(err))
		}
	}

	redisService := service.NewRedisService(&cfg.Redis)
	ctx := context.Background()
	if err := redisService.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
	}
	defer redisService.Close()

	personDet, vehicleDet, faceFine, plateFine := buildDetectors(cfg)

	detectionService := service.NewDetectionService(personDet, vehicleDet, faceFine, plateFine, &cfg.Detect)
	batchProcessor := service.NewBatchProcessor(detectionService, cfg.Batch.MaxWorkers)
	fetcher := service.NewFetcher(cfg.Upload.UploadDir, cfg.Upload.MaxSize, cfg.Upload.FetchTimeout)

	detectHandler := handler.NewDetectHandler(cfg, redisService, detectionService, batchProcessor, fetcher)

	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// Redacted images are served straight from the output directory.
	r.Static("/output", cfg.Upload.OutputDir)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": Version,
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/detect", detectHandler.Detect)
		api.POST("/detect-url", detectHandler.DetectURL)
		api.POST("/redact", detectHandler.Redact)
		api.POST("/batch", detectHandler.Batch)
		api.GET("/result/:md5", detectHandler.GetResult)
	}

	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := r.Run(cfg.Server.Port); err != nil {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}

// buildDetectors loads the configured model backends. Person and
// vehicle localization may share one network when the config points
// both at the same file.
func buildDetectors(cfg *config.Config) (personDet, vehicleDet service.CoarseDetector, faceFine, plateFine service.FineDetector) {
	personNet, err := service.NewYOLONet(cfg.Models.PersonModel, cfg.Models.InputSize)
	if err != nil {
		utils.Logger.Fatal("failed to load person model", zap.Error(err))
	}
	personDet = personNet

	if cfg.Models.VehicleModel == cfg.Models.PersonModel {
		vehicleDet = personNet
	} else {
		vehicleNet, err := service.NewYOLONet(cfg.Models.VehicleModel, cfg.Models.InputSize)
		if err != nil {
			utils.Logger.Fatal("failed to load vehicle model", zap.Error(err))
		}
		vehicleDet = vehicleNet
	}

	if cfg.Models.FaceModel != "" {
		faceNet, err := service.NewYOLONet(cfg.Models.FaceModel, cfg.Detect.FaceInputSize)
		if err != nil {
			utils.Logger.Fatal("failed to load face model", zap.Error(err))
		}
		faceFine = &service.FineAdapter{Net: faceNet, ScoreThr: cfg.Detect.FaceScoreThreshold}
	} else {
		cascade, err := service.NewCascadeFaceDetector(cfg.Models.FaceCascade)
		if err != nil {
			utils.Logger.Fatal("failed to load face cascade", zap.Error(err))
		}
		faceFine = cascade
	}

	plateNet, err := service.NewYOLONet(cfg.Models.PlateModel, cfg.Models.InputSize)
	if err != nil {
		utils.Logger.Fatal("failed to load plate model", zap.Error(err))
	}
	plateFine = &service.FineAdapter{Net: plateNet, ScoreThr: cfg.Detect.PlateScoreThreshold}

	return personDet, vehicleDet, faceFine, plateFine
}
