// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < --config file < env < flags
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/logflow/simlog/pkg/errors"
)

// Config holds all simlog configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Annotator  AnnotatorConfig  `yaml:"annotator"`
	Transform  TransformConfig  `yaml:"transform"`
	Risk       RiskConfig       `yaml:"risk"`
	Inputs     []InputConfig    `yaml:"inputs"`
	Output     OutputConfig     `yaml:"output"`
	Storage    StorageConfig    `yaml:"storage"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig controls the replicate loop.
type SimulationConfig struct {
	Replicates int    `yaml:"replicates"`
	Seed       uint64 `yaml:"seed"`
	// Resume skips replicates whose checkpoint is complete.
	Resume bool `yaml:"resume"`
	// Parquet also exports every simulated log as Parquet.
	Parquet     bool   `yaml:"parquet"`
	Compression string `yaml:"compression"` // snappy | zstd | gzip | lz4 | none
}

// GeneratorConfig bounds trace generation.
type GeneratorConfig struct {
	MaxFailedAttempts int `yaml:"max_failed_attempts"`
	ForceDrainAt      int `yaml:"force_drain_at"`
}

// AnnotatorConfig controls budget annotation.
type AnnotatorConfig struct {
	StrictCompositeBudgets bool `yaml:"strict_composite_budgets"`
}

// TransformConfig sets the synthetic clock.
type TransformConfig struct {
	EpochSeconds int64         `yaml:"epoch_seconds"`
	Step         time.Duration `yaml:"step"`
}

// RiskConfig configures re-identification scoring.
type RiskConfig struct {
	BKType               string   `yaml:"bk_type"` // set | multiset | sequence
	MaxBKLength          int      `yaml:"max_bk_length"`
	Measurement          string   `yaml:"measurement"` // average | worst_case
	AllLifecycle         bool     `yaml:"all_lifecycle"`
	Lifecycles           []string `yaml:"lifecycles"`
	SensitiveAttributes  []string `yaml:"sensitive_attributes"`
	MaxCandidatesPerCase int      `yaml:"max_candidates_per_case"`
	Workers              int      `yaml:"workers"`
}

// InputConfig names one process model to simulate.
type InputConfig struct {
	Name string `yaml:"name"`
	// Tree is a .json tree or a file in tree notation.
	Tree string `yaml:"tree"`
	// Frequencies is a .json/.yaml map of leaf name to firing count.
	Frequencies string `yaml:"frequencies"`
	// Log is an XES log whose activity counts are used when Frequencies
	// is empty.
	Log string `yaml:"log"`
	// SilentFrequencies supplies counts for silent leaves when counting
	// from Log.
	SilentFrequencies map[string]int `yaml:"silent_frequencies"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	Delimiter string `yaml:"delimiter"`
	// Summary is the risk table path (.csv or .xlsx), relative to the store.
	Summary string `yaml:"summary"`
	// Report is the simulation run report path (.csv or .xlsx).
	Report string `yaml:"report"`
}

// StorageConfig selects the artifact store.
type StorageConfig struct {
	Backend string   `yaml:"backend"` // local | s3
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the S3 store.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Prefix       string `yaml:"prefix"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string      `yaml:"backend"` // file | redis | store
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	Insecure      bool    `yaml:"insecure"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
}

// LoggingConfig for the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Replicates:  5,
			Seed:        42,
			Compression: "snappy",
		},
		Generator: GeneratorConfig{
			MaxFailedAttempts: 1000,
			ForceDrainAt:      1,
		},
		Annotator: AnnotatorConfig{
			StrictCompositeBudgets: true,
		},
		Transform: TransformConfig{
			EpochSeconds: 10000000,
			Step:         time.Second,
		},
		Risk: RiskConfig{
			BKType:               "set",
			MaxBKLength:          5,
			Measurement:          "average",
			AllLifecycle:         true,
			Lifecycles:           []string{"complete", "", "COMPLETE"},
			MaxCandidatesPerCase: 2000,
			Workers:              4,
		},
		Output: OutputConfig{
			Dir:       "simulated_logs",
			Delimiter: ",",
			Summary:   "Results/summary.csv",
			Report:    "Results/simulation_report.csv",
		},
		Storage: StorageConfig{
			Backend: "local",
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Dir:     filepath.Join(".simlog", "checkpoints"),
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "simlog:checkpoints:",
				TTL:     7 * 24 * time.Hour,
			},
		},
		Telemetry: TelemetryConfig{
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs serrors.MultiError
	bad := func(key string, value interface{}, msg string) {
		errs.Add(serrors.New(serrors.CodeInvalidConfig, msg).WithContext("key", key).WithContext("value", value))
	}

	if c.Simulation.Replicates < 1 {
		bad("simulation.replicates", c.Simulation.Replicates, "must be at least 1")
	}
	if c.Generator.MaxFailedAttempts < 1 {
		bad("generator.max_failed_attempts", c.Generator.MaxFailedAttempts, "must be at least 1")
	}
	if c.Transform.Step <= 0 {
		bad("transform.step", c.Transform.Step, "must be positive")
	}
	switch c.Risk.BKType {
	case "set", "multiset", "sequence":
	default:
		bad("risk.bk_type", c.Risk.BKType, "must be set, multiset or sequence")
	}
	switch c.Risk.Measurement {
	case "average", "worst_case":
	default:
		bad("risk.measurement", c.Risk.Measurement, "must be average or worst_case")
	}
	if c.Risk.MaxBKLength < 1 {
		bad("risk.max_bk_length", c.Risk.MaxBKLength, "must be at least 1")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		bad("telemetry.sampling_ratio", c.Telemetry.SamplingRatio, "must be within [0, 1]")
	}
	switch c.Storage.Backend {
	case "local", "s3":
	default:
		bad("storage.backend", c.Storage.Backend, "must be local or s3")
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		bad("storage.s3.bucket", "", "required for the s3 backend")
	}
	switch c.Checkpoint.Backend {
	case "file", "redis", "store", "none":
	default:
		bad("checkpoint.backend", c.Checkpoint.Backend, "must be file, redis, store or none")
	}

	seen := make(map[string]bool)
	for i, in := range c.Inputs {
		key := fmt.Sprintf("inputs[%d]", i)
		switch {
		case in.Name == "":
			bad(key+".name", "", "required")
		case seen[in.Name]:
			bad(key+".name", in.Name, "duplicate input name")
		}
		seen[in.Name] = true
		if in.Tree == "" {
			bad(key+".tree", "", "required")
		}
		if in.Frequencies == "" && in.Log == "" {
			bad(key, in.Name, "needs frequencies or log")
		}
	}
	return errs.Combined()
}

// Input returns the input named name.
func (c *Config) Input(name string) (InputConfig, bool) {
	for _, in := range c.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputConfig{}, false
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded

	getenv      func(string) string
	searchPaths func() []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config:      Default(),
		getenv:      os.Getenv,
		searchPaths: defaultPaths,
	}
}

// Load loads configuration from all sources in priority order. explicit,
// when set, must exist; the search paths are optional.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.searchPaths() {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return serrors.FileNotFound(explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// defaultPaths returns config file paths in priority order.
func defaultPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/simlog/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".simlog", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".simlog.yaml"))
	}

	return paths
}

// loadFile decodes a config file onto the current configuration. Keys
// absent from the file keep their earlier value; unknown keys are errors.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decodeInto(m.config, bytes.NewReader(data), path)
}

func decodeInto(cfg *Config, r io.Reader, source string) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return serrors.Wrap(err, serrors.CodeInvalidConfig, "decode config").WithContext("path", source)
	}
	return nil
}

// Parse decodes a YAML document over the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeInto(cfg, r, "<reader>"); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// loadEnv applies SIMLOG_* environment overrides.
func (m *Manager) loadEnv() error {
	c := m.config
	str := map[string]*string{
		"SIMLOG_OUTPUT_DIR":         &c.Output.Dir,
		"SIMLOG_STORAGE_BACKEND":    &c.Storage.Backend,
		"SIMLOG_S3_BUCKET":          &c.Storage.S3.Bucket,
		"SIMLOG_S3_REGION":          &c.Storage.S3.Region,
		"SIMLOG_S3_ENDPOINT":        &c.Storage.S3.Endpoint,
		"SIMLOG_CHECKPOINT_BACKEND": &c.Checkpoint.Backend,
		"SIMLOG_REDIS_ADDRESS":      &c.Checkpoint.Redis.Address,
		"SIMLOG_REDIS_PASSWORD":     &c.Checkpoint.Redis.Password,
		"SIMLOG_LOG_LEVEL":          &c.Logging.Level,
		"SIMLOG_LOG_FORMAT":         &c.Logging.Format,
		"SIMLOG_TELEMETRY_ENDPOINT": &c.Telemetry.Endpoint,
		"SIMLOG_BK_TYPE":            &c.Risk.BKType,
	}
	for env, dst := range str {
		if v := m.getenv(env); v != "" {
			*dst = v
		}
	}

	if v := m.getenv("SIMLOG_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return envError("SIMLOG_SEED", v, err)
		}
		c.Simulation.Seed = seed
	}
	if v := m.getenv("SIMLOG_REPLICATES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("SIMLOG_REPLICATES", v, err)
		}
		c.Simulation.Replicates = n
	}
	if v := m.getenv("SIMLOG_TELEMETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("SIMLOG_TELEMETRY_ENABLED", v, err)
		}
		c.Telemetry.Enabled = b
	}
	if v := m.getenv("SIMLOG_RESUME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("SIMLOG_RESUME", v, err)
		}
		c.Simulation.Resume = b
	}
	return nil
}

func envError(key, value string, err error) error {
	return serrors.Wrap(err, serrors.CodeInvalidConfig, "invalid environment override").
		WithContext("env", key).
		WithContext("value", value)
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Write renders the configuration as YAML.
func Write(w io.Writer, c *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "encode config")
	}
	return enc.Close()
}

// Save writes the configuration to path, creating parent directories.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "create config directory")
	}
	var buf bytes.Buffer
	if err := Write(&buf, c); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return serrors.Wrap(err, serrors.CodeWriteFailed, "write config").WithContext("path", path)
	}
	return nil
}

// ResolvePath makes a relative input path relative to base's directory.
func ResolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(filepath.Dir(base), path)
}

// LevelName normalizes common level spellings.
func LevelName(s string) string {
	switch strings.ToLower(s) {
	case "warning":
		return "warn"
	case "":
		return "info"
	default:
		return strings.ToLower(s)
	}
}
