package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server Server  `mapstructure:"server"`
	Redis  Redis   `mapstructure:"redis"`
	Upload Upload  `mapstructure:"upload"`
	Models Models  `mapstructure:"models"`
	Detect Detect  `mapstructure:"detect"`
	Redact Redact  `mapstructure:"redact"`
	Batch  Batch   `mapstructure:"batch"`
}

type Server struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Upload struct {
	MaxSize      int64    `mapstructure:"max_size"`
	UploadDir    string   `mapstructure:"upload_dir"`
	OutputDir    string   `mapstructure:"output_dir"`
	AllowedTypes []string `mapstructure:"allowed_types"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	CleanupTempFiles bool `mapstructure:"cleanup_temp_files"`
}

// Models points at the detector weights on disk.
type Models struct {
	PersonModel  string `mapstructure:"person_model"`
	VehicleModel string `mapstructure:"vehicle_model"`
	FaceModel    string `mapstructure:"face_model"`
	FaceCascade  string `mapstructure:"face_cascade"`
	PlateModel   string `mapstructure:"plate_model"`
	InputSize    int    `mapstructure:"input_size"`
}

// Detect carries every tunable of the two detection pipelines.
type Detect struct {
	// person ROI + tiling
	ROIScale      float64 `mapstructure:"roi_scale"`
	ROISquare     bool    `mapstructure:"roi_square"`
	GridX         int     `mapstructure:"grid_x"`
	GridY         int     `mapstructure:"grid_y"`
	TileOverlap   float64 `mapstructure:"tile_overlap"`
	FaceInputSize int     `mapstructure:"face_input_size"`
	FlipAugment   bool    `mapstructure:"flip_augmentation"`

	// face gating
	HeadFraction float64 `mapstructure:"head_fraction"`
	BandMargin   float64 `mapstructure:"band_margin"`
	SizeMinRel   float64 `mapstructure:"size_min_rel"`
	SizeMaxRel   float64 `mapstructure:"size_max_rel"`

	// thresholds
	PersonScoreThreshold  float64 `mapstructure:"person_score_threshold"`
	FaceScoreThreshold    float64 `mapstructure:"face_score_threshold"`
	VehicleScoreThreshold float64 `mapstructure:"vehicle_score_threshold"`
	PlateScoreThreshold   float64 `mapstructure:"plate_score_threshold"`

	// NMS
	PersonNMSIoU  float64 `mapstructure:"person_nms_iou"`
	FaceNMSIoU    float64 `mapstructure:"face_nms_iou"`
	VehicleNMSIoU float64 `mapstructure:"vehicle_nms_iou"`

	// plate size filter
	MaxAreaFraction float64 `mapstructure:"max_area_fraction"`
	AllPlates       bool    `mapstructure:"all_plates"`

	// concurrency across images
	MaxConcurrent int `mapstructure:"max_concurrent"`
	QueueTimeout  int `mapstructure:"queue_timeout"`
}

type Redact struct {
	FaceBlurStrength  int `mapstructure:"face_blur_strength"`
	PlateBlurStrength int `mapstructure:"plate_blur_strength"`
}

type Batch struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// Load reads a YAML config file on top of the built-in defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// New loads config.yaml, falling back to defaults when the file is missing.
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return getDefaultConfig()
	}
	return cfg
}

// Validate rejects out-of-range parameters before any detection work runs.
func (c *Config) Validate() error {
	d := &c.Detect
	if d.ROIScale <= 0 {
		return fmt.Errorf("detect.roi_scale must be positive, got %v", d.ROIScale)
	}
	if d.GridX < 1 || d.GridY < 1 {
		return fmt.Errorf("detect.grid_x/grid_y must be at least 1, got %dx%d", d.GridX, d.GridY)
	}
	if d.TileOverlap < 0 || d.TileOverlap >= 0.5 {
		return fmt.Errorf("detect.tile_overlap must be in [0, 0.5), got %v", d.TileOverlap)
	}
	if d.FaceInputSize < 32 {
		return fmt.Errorf("detect.face_input_size must be at least 32, got %d", d.FaceInputSize)
	}
	if d.HeadFraction <= 0 || d.HeadFraction > 1 {
		return fmt.Errorf("detect.head_fraction must be in (0, 1], got %v", d.HeadFraction)
	}
	if d.SizeMinRel < 0 || d.SizeMaxRel <= d.SizeMinRel {
		return fmt.Errorf("detect.size_min_rel/size_max_rel must satisfy 0 <= min < max, got %v/%v",
			d.SizeMinRel, d.SizeMaxRel)
	}
	for name, iou := range map[string]float64{
		"person_nms_iou":  d.PersonNMSIoU,
		"face_nms_iou":    d.FaceNMSIoU,
		"vehicle_nms_iou": d.VehicleNMSIoU,
	} {
		if iou < 0 || iou > 1 {
			return fmt.Errorf("detect.%s must be in [0, 1], got %v", name, iou)
		}
	}
	if d.MaxAreaFraction <= 0 || d.MaxAreaFraction > 1 {
		return fmt.Errorf("detect.max_area_fraction must be in (0, 1], got %v", d.MaxAreaFraction)
	}
	if c.Redact.FaceBlurStrength <= 0 || c.Redact.PlateBlurStrength <= 0 {
		return fmt.Errorf("redact blur strengths must be positive, got face=%d plate=%d",
			c.Redact.FaceBlurStrength, c.Redact.PlateBlurStrength)
	}
	if c.Batch.MaxWorkers < 1 {
		return fmt.Errorf("batch.max_workers must be at least 1, got %d", c.Batch.MaxWorkers)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 20*1024*1024)
	v.SetDefault("upload.upload_dir", "./uploads")
	v.SetDefault("upload.output_dir", "./output")
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg"})
	v.SetDefault("upload.fetch_timeout", 30*time.Second)
	v.SetDefault("upload.cleanup_temp_files", true)

	v.SetDefault("models.person_model", "models/person.onnx")
	v.SetDefault("models.vehicle_model", "models/vehicle.onnx")
	v.SetDefault("models.face_model", "")
	v.SetDefault("models.face_cascade", "models/haarcascade_frontalface_default.xml")
	v.SetDefault("models.plate_model", "models/license_plate.onnx")
	v.SetDefault("models.input_size", 640)

	v.SetDefault("detect.roi_scale", 1.10)
	v.SetDefault("detect.roi_square", false)
	v.SetDefault("detect.grid_x", 2)
	v.SetDefault("detect.grid_y", 2)
	v.SetDefault("detect.tile_overlap", 0.30)
	v.SetDefault("detect.face_input_size", 640)
	v.SetDefault("detect.flip_augmentation", true)

	v.SetDefault("detect.head_fraction", 0.45)
	v.SetDefault("detect.band_margin", 0.0)
	v.SetDefault("detect.size_min_rel", 0.10)
	v.SetDefault("detect.size_max_rel", 0.55)

	v.SetDefault("detect.person_score_threshold", 0.25)
	v.SetDefault("detect.face_score_threshold", 0.20)
	v.SetDefault("detect.vehicle_score_threshold", 0.50)
	v.SetDefault("detect.plate_score_threshold", 0.20)

	v.SetDefault("detect.person_nms_iou", 0.60)
	v.SetDefault("detect.face_nms_iou", 0.55)
	v.SetDefault("detect.vehicle_nms_iou", 0.60)

	v.SetDefault("detect.max_area_fraction", 0.30)
	v.SetDefault("detect.all_plates", false)

	v.SetDefault("detect.max_concurrent", 3)
	v.SetDefault("detect.queue_timeout", 60)

	v.SetDefault("redact.face_blur_strength", 25)
	v.SetDefault("redact.plate_blur_strength", 20)

	v.SetDefault("batch.max_workers", 4)
}

func getDefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; an error here is a programming bug.
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return &cfg
}
