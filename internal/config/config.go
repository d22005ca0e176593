package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Catalog   CatalogConfig   `json:"catalog" yaml:"catalog"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Alerts    AlertsConfig    `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int          `json:"channel_buffer" yaml:"channel_buffer"`
	Stream        StreamConfig `json:"stream" yaml:"stream"`
	Replay        ReplayConfig `json:"replay" yaml:"replay"`
	Kafka         KafkaConfig  `json:"kafka" yaml:"kafka"`
}

// StreamConfig points at the TCP producer emitting line-delimited JSON events.
type StreamConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	Addr             string        `json:"addr" yaml:"addr"`
	ReconnectBackoff time.Duration `json:"reconnect_backoff" yaml:"reconnect_backoff"`
}

type ReplayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Follow  bool   `json:"follow" yaml:"follow"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type DetectionConfig struct {
	CorrelationWindow    time.Duration `json:"correlation_window" yaml:"correlation_window"`
	CorrelationRetention time.Duration `json:"correlation_retention" yaml:"correlation_retention"`

	ScanTimeout time.Duration `json:"scan_timeout" yaml:"scan_timeout"`

	WeightTolerancePct float64 `json:"weight_tolerance_pct" yaml:"weight_tolerance_pct"`

	RecognitionMinAccuracy float64       `json:"recognition_min_accuracy" yaml:"recognition_min_accuracy"`
	SwitchTimeWindow       time.Duration `json:"switch_time_window" yaml:"switch_time_window"`
	MinPriceDifference     float64       `json:"min_price_difference" yaml:"min_price_difference"`

	LongQueueThreshold int           `json:"long_queue_threshold" yaml:"long_queue_threshold"`
	LongWaitThreshold  time.Duration `json:"long_wait_threshold" yaml:"long_wait_threshold"`

	DiscrepancyThresholdPct  float64 `json:"discrepancy_threshold_pct" yaml:"discrepancy_threshold_pct"`
	MinRFIDEventsForBaseline int     `json:"min_rfid_events_for_baseline" yaml:"min_rfid_events_for_baseline"`

	InactivityTimeout time.Duration `json:"inactivity_timeout" yaml:"inactivity_timeout"`
	MinCrashDuration  time.Duration `json:"min_crash_duration" yaml:"min_crash_duration"`

	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	TimeoutInterval time.Duration `json:"timeout_interval" yaml:"timeout_interval"`

	DedupeSize int `json:"dedupe_size" yaml:"dedupe_size"`
}

type CatalogConfig struct {
	ProductsPath  string `json:"products_path" yaml:"products_path"`
	CustomersPath string `json:"customers_path" yaml:"customers_path"`
}

type OutputConfig struct {
	EventsFile string `json:"events_file" yaml:"events_file"`
	JSONLFile  string `json:"jsonl_file" yaml:"jsonl_file"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			Stream:        StreamConfig{Enabled: true, Addr: "127.0.0.1:8765", ReconnectBackoff: 5 * time.Second},
			Replay:        ReplayConfig{Enabled: false},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Detection: DetectionConfig{
			CorrelationWindow:        30 * time.Second,
			CorrelationRetention:     2 * time.Hour,
			ScanTimeout:              60 * time.Second,
			WeightTolerancePct:       10,
			RecognitionMinAccuracy:   0.6,
			SwitchTimeWindow:         60 * time.Second,
			MinPriceDifference:       50,
			LongQueueThreshold:       5,
			LongWaitThreshold:        300 * time.Second,
			DiscrepancyThresholdPct:  50,
			MinRFIDEventsForBaseline: 20,
			InactivityTimeout:        5 * time.Minute,
			MinCrashDuration:         30 * time.Second,
			CleanupInterval:          300 * time.Second,
			TimeoutInterval:          60 * time.Second,
			DedupeSize:               4096,
		},
		Catalog: CatalogConfig{
			ProductsPath:  "data/products_list.csv",
			CustomersPath: "data/customer_data.csv",
		},
		Output: OutputConfig{
			EventsFile: "output/events.json",
			JSONLFile:  "output/events.jsonl",
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:sentinel.db?_pragma=busy_timeout(5000)"},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Stream.ReconnectBackoff <= 0 {
		cfg.Ingest.Stream.ReconnectBackoff = 5 * time.Second
	}
	d := &cfg.Detection
	if d.CorrelationWindow <= 0 {
		d.CorrelationWindow = 30 * time.Second
	}
	if d.CorrelationRetention <= 0 {
		d.CorrelationRetention = 2 * time.Hour
	}
	if d.ScanTimeout <= 0 {
		d.ScanTimeout = 60 * time.Second
	}
	if d.WeightTolerancePct <= 0 {
		d.WeightTolerancePct = 10
	}
	if d.RecognitionMinAccuracy <= 0 {
		d.RecognitionMinAccuracy = 0.6
	}
	if d.SwitchTimeWindow <= 0 {
		d.SwitchTimeWindow = 60 * time.Second
	}
	if d.MinPriceDifference <= 0 {
		d.MinPriceDifference = 50
	}
	if d.LongQueueThreshold <= 0 {
		d.LongQueueThreshold = 5
	}
	if d.LongWaitThreshold <= 0 {
		d.LongWaitThreshold = 300 * time.Second
	}
	if d.DiscrepancyThresholdPct <= 0 {
		d.DiscrepancyThresholdPct = 50
	}
	if d.MinRFIDEventsForBaseline <= 0 {
		d.MinRFIDEventsForBaseline = 20
	}
	if d.InactivityTimeout <= 0 {
		d.InactivityTimeout = 5 * time.Minute
	}
	if d.MinCrashDuration <= 0 {
		d.MinCrashDuration = 30 * time.Second
	}
	if d.CleanupInterval <= 0 {
		d.CleanupInterval = 300 * time.Second
	}
	if d.TimeoutInterval <= 0 {
		d.TimeoutInterval = 60 * time.Second
	}
	if d.DedupeSize <= 0 {
		d.DedupeSize = 4096
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Output.EventsFile == "" {
		cfg.Output.EventsFile = "output/events.json"
	}
	if cfg.Output.JSONLFile == "" {
		cfg.Output.JSONLFile = strings.TrimSuffix(cfg.Output.EventsFile, ".json") + ".jsonl"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.Stream.Enabled && cfg.Ingest.Stream.Addr == "" {
		return errors.New("ingest.stream.addr required when ingest.stream.enabled is true")
	}
	if cfg.Ingest.Replay.Enabled && cfg.Ingest.Replay.Path == "" {
		return errors.New("ingest.replay.path required when ingest.replay.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Detection.RecognitionMinAccuracy > 1 {
		return fmt.Errorf("detection.recognition_min_accuracy must be in (0,1], got %v", cfg.Detection.RecognitionMinAccuracy)
	}
	if cfg.Output.EventsFile == "" {
		return errors.New("output.events_file is required")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	applyDefaults(cfg)
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
