package config

import (
	_ "embed"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Directory DirectoryConfig
	FaceAPI   FaceAPIConfig
	Gallery   GalleryConfig
	Camera    CameraConfig
	MQTT      MQTTConfig
	Web       WebConfig
	Defaults  Defaults
	Location  *time.Location
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; when empty the SQLite file is used
	SQLitePath   string // defaults to attendance.db
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// DirectoryConfig points at an external school information system holding the student list.
type DirectoryConfig struct {
	DSN string // MariaDB DSN (e.g., sis:sis@tcp(mariadb:3306)/school); empty uses the local students table
}

type FaceAPIConfig struct {
	Provider  string // "http" (default), "http-split" (separate detect and encode calls) or "dlib"
	URL       string // defaults to http://localhost:8000
	ModelsDir string // dlib model directory, only used by binaries built with the dlib tag
}

type GalleryConfig struct {
	CorpusDir     string // defaults to images_db
	SnapshotPath  string // defaults to encodings.gob
	HNSWThreshold int    // galleries with at least this many entries are served from an HNSW index (0 disables)
	Workers       int    // parallel images encoded during a rebuild
}

type CameraConfig struct {
	Device   string   // /dev/video0, http(s):// MJPEG URL, or a directory of frames
	Devices  []string // further cameras web clients may open
	FontPath string   // optional TTF/OTF font for overlay labels (needed for Thai names)
}

// AllowedDevices returns the cameras web clients may open, the default device
// first.
func (c CameraConfig) AllowedDevices() []string {
	out := []string{c.Device}
	for _, d := range c.Devices {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

type MQTTConfig struct {
	Broker   string // host:port, empty disables notifications
	Topic    string // defaults to attendance/events
	ClientID string // defaults to attendance-cam
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// Defaults holds the embedded tunables from defaults.yaml.
type Defaults struct {
	Policy  PolicyDefaults  `yaml:"policy"`
	Camera  CameraDefaults  `yaml:"camera"`
	Overlay OverlayDefaults `yaml:"overlay"`
	Enroll  EnrollDefaults  `yaml:"enroll"`
}

type PolicyDefaults struct {
	Tolerance    float64 `yaml:"tolerance"`
	GraceMinutes int     `yaml:"grace_minutes"`
	LateCutoff   string  `yaml:"late_cutoff"`
}

type CameraDefaults struct {
	Downsample      float64 `yaml:"downsample"`
	JPEGQuality     int     `yaml:"jpeg_quality"`
	FrameIntervalMs int     `yaml:"frame_interval_ms"`
}

type OverlayDefaults struct {
	KnownColor   string  `yaml:"known_color"`
	UnknownColor string  `yaml:"unknown_color"`
	LabelHeight  int     `yaml:"label_height"`
	FontSize     float64 `yaml:"font_size"`
}

type EnrollDefaults struct {
	Frames     int `yaml:"frames"`
	IntervalMs int `yaml:"interval_ms"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegativeInt is envInt accepting zero.
func envNonNegativeInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float from the environment, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func loadDefaults() Defaults {
	var d Defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	defaults := loadDefaults()
	defaults.Policy.Tolerance = envFloat("MATCH_TOLERANCE", defaults.Policy.Tolerance)
	defaults.Policy.GraceMinutes = envNonNegativeInt("GRACE_MINUTES", defaults.Policy.GraceMinutes)
	defaults.Policy.LateCutoff = envString("LATE_CUTOFF", defaults.Policy.LateCutoff)
	defaults.Camera.Downsample = envFloat("CAMERA_SCALE", defaults.Camera.Downsample)

	loc := time.Local
	if name := os.Getenv("TZ_NAME"); name != "" {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			SQLitePath:   envString("SQLITE_PATH", "attendance.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Directory: DirectoryConfig{
			DSN: os.Getenv("DIRECTORY_DSN"),
		},
		FaceAPI: FaceAPIConfig{
			Provider:  envString("FACE_PROVIDER", "http"),
			URL:       envString("FACE_API_URL", "http://localhost:8000"),
			ModelsDir: envString("FACE_MODELS_DIR", "models"),
		},
		Gallery: GalleryConfig{
			CorpusDir:     envString("CORPUS_DIR", "images_db"),
			SnapshotPath:  envString("GALLERY_PATH", "encodings.gob"),
			HNSWThreshold: envInt("GALLERY_HNSW_THRESHOLD", 0),
			Workers:       envInt("GALLERY_WORKERS", 4),
		},
		Camera: CameraConfig{
			Device:   envString("CAMERA_DEVICE", "/dev/video0"),
			Devices:  envList("CAMERA_DEVICES"),
			FontPath: os.Getenv("FONT_PATH"),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    envString("MQTT_TOPIC", "attendance/events"),
			ClientID: envString("MQTT_CLIENT_ID", "attendance-cam"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Defaults: defaults,
		Location: loc,
	}
}

// UsesPostgres reports whether the PostgreSQL backend is configured.
func (c *DatabaseConfig) UsesPostgres() bool {
	return c.URL != ""
}
