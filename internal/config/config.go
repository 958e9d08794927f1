package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type SourceType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"
	SourceGoCV   SourceType = "GoCV"

	DefaultConfigPath string = "config.json"
)


type ModelBackend string

const (
	BackendONNX   ModelBackend = "onnx"
	BackendRemote ModelBackend = "remote"
)

type SinkBackend string

const (
	SinkFirebase SinkBackend = "firebase"
	SinkRedis    SinkBackend = "redis"
	SinkSQL      SinkBackend = "sql"
	SinkLog      SinkBackend = "log"
)

// RecordMode selects how detections of one frame become sink records.
type RecordMode string

const (
	// RecordAll emits one record per detection.
	RecordAll RecordMode = "all"
	// RecordLast emits a single record built from the last detection of the frame.
	RecordLast RecordMode = "last"
)

type LocalConfig struct {
	Path string `json:"path"`
}

type WebcamConfig struct {
	DeviceID string `json:"device_id"`
}

type ModelConfig struct {
	Backend        ModelBackend `json:"backend"`
	Path           string       `json:"path"`
	RuntimeLibrary string       `json:"runtime_library"`
	RemoteHost     string       `json:"remote_host"`
	LabelsPath     string       `json:"labels_path"`
	Confidence     float32      `json:"confidence"`
	IoU            float32      `json:"iou"`
}

type SinkConfig struct {
	Backends        []SinkBackend `json:"backends"`
	CredentialsPath string        `json:"credentials_path"`
	DatabaseURL     string        `json:"database_url"`
	Collection      string        `json:"collection"`
	RedisAddr       string        `json:"redis_addr"`
	SQLDSN          string        `json:"sql_dsn"`
	TimeoutMs       int           `json:"timeout_ms"`
	QueueSize       int           `json:"queue_size"`
}

type Config struct {
	mu sync.RWMutex

	ActiveSource SourceType `json:"active_source"`
	TargetFPS    uint       `json:"target_fps"`
	ScaledWidth  int        `json:"scaled_width"`
	ScaledHeight int        `json:"scaled_height"`

	Local  LocalConfig  `json:"local"`
	Webcam WebcamConfig `json:"webcam"`

	Model  ModelConfig `json:"model"`
	Labels []string    `json:"labels"`
	Sink   SinkConfig  `json:"sink"`

	RecordMode RecordMode `json:"record_mode"`
	Debug      bool       `json:"debug"`
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

// TickInterval is the display cadence derived from the target FPS.
// 30 fps gives 33ms.
func (c *Config) TickInterval() time.Duration {
	fps := c.GetFPS()
	if fps == 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledWidth
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledWidth = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ScaledHeight
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ScaledHeight = height
}

func (c *Config) GetConfidence() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Model.Confidence
}

func (c *Config) SetConfidence(conf float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Model.Confidence = conf
}

func (c *Config) SinkTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Sink.TimeoutMs <= 0 {
		return DefaultSinkTimeout
	}
	return time.Duration(c.Sink.TimeoutMs) * time.Millisecond
}

func (c *Config) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "open config for writing")
	}
	defer f.Close()

	c.mu.RLock()
	defer c.mu.RUnlock()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(c), "encode config")
}

func (c *Config) SaveByDefault() error {
	return c.Save(DefaultConfigPath)
}

// LoadConfigFile reads path over the defaults. A missing file is not an error;
// a malformed one returns the defaults together with the decode error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return NewDefaultConfig(), errors.Wrapf(err, "decode config %s", path)
	}

	cfg.applyDefaults()
	return cfg, nil
}

const (
	DefaultFPS         uint = 30
	DefaultSinkTimeout      = 5 * time.Second
	DefaultQueueSize        = 64
)

var DefaultLabels = []string{"Persona", "Casco", "Arco"}

func NewDefaultConfig() *Config {
	return &Config{
		ActiveSource: SourceLocal,
		Local:        LocalConfig{Path: "solda.mp4"},
		Webcam:       WebcamConfig{DeviceID: "/dev/video0"},
		TargetFPS:    DefaultFPS,
		ScaledWidth:  640,
		ScaledHeight: 480,
		Model: ModelConfig{
			Backend:    BackendONNX,
			Path:       "best.onnx",
			RemoteHost: "localhost:8080",
			Confidence: 0.25,
			IoU:        0.45,
		},
		Labels: append([]string(nil), DefaultLabels...),
		Sink: SinkConfig{
			Backends:        []SinkBackend{SinkFirebase},
			CredentialsPath: "serviceAccountKey.json",
			DatabaseURL:     "https://eppsoldadura-default-rtdb.firebaseio.com/",
			Collection:      "detecciones",
			RedisAddr:       "localhost:6379",
			TimeoutMs:       int(DefaultSinkTimeout / time.Millisecond),
			QueueSize:       DefaultQueueSize,
		},
		RecordMode: RecordAll,
	}
}

// applyDefaults fills zero values a partial config file left behind.
func (c *Config) applyDefaults() {
	def := NewDefaultConfig()

	if c.ActiveSource == "" {
		c.ActiveSource = def.ActiveSource
	}
	if c.TargetFPS == 0 {
		c.TargetFPS = def.TargetFPS
	}
	if c.ScaledWidth <= 0 {
		c.ScaledWidth = def.ScaledWidth
	}
	if c.ScaledHeight <= 0 {
		c.ScaledHeight = def.ScaledHeight
	}
	if c.Model.Backend == "" {
		c.Model.Backend = def.Model.Backend
	}
	if c.Model.Confidence <= 0 {
		c.Model.Confidence = def.Model.Confidence
	}
	if c.Model.IoU <= 0 {
		c.Model.IoU = def.Model.IoU
	}
	if len(c.Labels) == 0 {
		c.Labels = def.Labels
	}
	if c.Sink.Collection == "" {
		c.Sink.Collection = def.Sink.Collection
	}
	if c.Sink.QueueSize <= 0 {
		c.Sink.QueueSize = def.Sink.QueueSize
	}
	if c.RecordMode != RecordLast {
		c.RecordMode = RecordAll
	}
}
