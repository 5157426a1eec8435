// Package config loads the job configuration: storage credentials, source
// and destination roots, input file names and per-stage settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"i94_etl/internal/labels"
	"i94_etl/internal/storage"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const envPrefix = "I94_ETL_"

// Config represents the complete configuration of an ETL run.
type Config struct {
	AWS         AWSConfig         `toml:"aws"`
	Paths       PathsConfig       `toml:"paths"`
	Labels      LabelsConfig      `toml:"labels"`
	Temperature TemperatureConfig `toml:"temperature"`
	Write       WriteConfig       `toml:"write"`
	Stages      StagesConfig      `toml:"stages"`
	Surrogate   SurrogateConfig   `toml:"surrogate"`
}

// AWSConfig contains the S3 credentials and endpoint.
type AWSConfig struct {
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	EndpointURL     string `toml:"endpoint_url"`
}

// PathsConfig locates inputs and outputs. Input files are resolved against
// SourceRoot unless they are absolute paths or URLs.
type PathsConfig struct {
	SourceRoot      string `toml:"source_root"`
	DestinationRoot string `toml:"destination_root"`
	ImmigrationFile string `toml:"immigration_file"`
	LabelsFile      string `toml:"labels_file"`
	TemperatureFile string `toml:"temperature_file"`
	DemographyFile  string `toml:"demography_file"`
	TempDir         string `toml:"temp_dir"`
	StatsFile       string `toml:"stats_file"`
}

// LineRange is a 0-based, end-exclusive block of lines.
type LineRange struct {
	Start int `toml:"start"`
	End   int `toml:"end"`
}

// LabelsConfig holds the line ranges of the three code lookups.
type LabelsConfig struct {
	Country LineRange `toml:"country"`
	City    LineRange `toml:"city"`
	State   LineRange `toml:"state"`
}

// TemperatureConfig controls the temperature stage.
type TemperatureConfig struct {
	Country string `toml:"country"`
}

// WriteConfig tunes the parquet writer.
type WriteConfig struct {
	PartitionWorkers int  `toml:"partition_workers"`
	VerifyUpload     bool `toml:"verify_upload"`
	VerifyAccess     bool `toml:"verify_access"`
}

// StagesConfig enables or disables individual stages.
type StagesConfig struct {
	Immigration bool `toml:"immigration"`
	Labels      bool `toml:"labels"`
	Temperature bool `toml:"temperature"`
	Demography  bool `toml:"demography"`
}

// SurrogateConfig configures surrogate id generation.
type SurrogateConfig struct {
	NodeID int64 `toml:"node_id"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	rules := labels.DefaultRules()
	return &Config{
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Paths: PathsConfig{
			SourceRoot:      "./",
			ImmigrationFile: "i94_apr16_sub.sas7bdat",
			LabelsFile:      "I94_SAS_Labels_Descriptions.SAS",
			TemperatureFile: "GlobalLandTemperaturesByCity.csv",
			DemographyFile:  "us-cities-demographics.csv",
			TempDir:         filepath.Join(os.TempDir(), "i94_etl"),
			StatsFile:       "etl_stats.json",
		},
		Labels: LabelsConfig{
			Country: LineRange{Start: rules[0].Start, End: rules[0].End},
			City:    LineRange{Start: rules[1].Start, End: rules[1].End},
			State:   LineRange{Start: rules[2].Start, End: rules[2].End},
		},
		Temperature: TemperatureConfig{
			Country: "United States",
		},
		Write: WriteConfig{
			PartitionWorkers: 8,
			VerifyUpload:     true,
			VerifyAccess:     true,
		},
		Stages: StagesConfig{
			Immigration: true,
			Labels:      true,
			Temperature: true,
			Demography:  true,
		},
		Surrogate: SurrogateConfig{
			NodeID: 1,
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file, an
// optional .env file and I94_ETL_* environment variables, in increasing
// order of priority. CLI overrides are applied by the caller.
func Load(configPath, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for key, dst := range map[string]*string{
		"AWS_REGION":            &c.AWS.Region,
		"AWS_ACCESS_KEY_ID":     &c.AWS.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &c.AWS.SecretAccessKey,
		"AWS_ENDPOINT_URL":      &c.AWS.EndpointURL,
		"SOURCE_ROOT":           &c.Paths.SourceRoot,
		"DESTINATION_ROOT":      &c.Paths.DestinationRoot,
		"TEMP_DIR":              &c.Paths.TempDir,
	} {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
}

// ApplyOverrides applies CLI flag overrides to the configuration.
func (c *Config) ApplyOverrides(source, destination *string) {
	if source != nil && *source != "" {
		c.Paths.SourceRoot = *source
	}
	if destination != nil && *destination != "" {
		c.Paths.DestinationRoot = *destination
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Paths.DestinationRoot == "" {
		return fmt.Errorf("%w: destination root cannot be empty", ErrInvalid)
	}
	if c.Paths.SourceRoot == "" {
		return fmt.Errorf("%w: source root cannot be empty", ErrInvalid)
	}
	if c.Paths.TempDir == "" {
		return fmt.Errorf("%w: temp dir cannot be empty", ErrInvalid)
	}

	if c.UsesS3() {
		if c.AWS.Region == "" {
			return fmt.Errorf("%w: AWS region cannot be empty", ErrInvalid)
		}
		if c.AWS.AccessKeyID == "" {
			return fmt.Errorf("%w: AWS access_key_id cannot be empty", ErrInvalid)
		}
		if c.AWS.SecretAccessKey == "" {
			return fmt.Errorf("%w: AWS secret_access_key cannot be empty", ErrInvalid)
		}
	}

	for _, r := range c.LabelRules() {
		if r.Start < 0 || r.End < r.Start {
			return fmt.Errorf("%w: label range %s must satisfy 0 <= start <= end, got [%d:%d]",
				ErrInvalid, r.Name, r.Start, r.End)
		}
	}

	if c.Temperature.Country == "" {
		return fmt.Errorf("%w: temperature country cannot be empty", ErrInvalid)
	}
	if c.Write.PartitionWorkers < 1 {
		return fmt.Errorf("%w: partition_workers must be at least 1, got %d", ErrInvalid, c.Write.PartitionWorkers)
	}
	if c.Surrogate.NodeID < 0 || c.Surrogate.NodeID > 1023 {
		return fmt.Errorf("%w: surrogate node_id must be within 0-1023, got %d", ErrInvalid, c.Surrogate.NodeID)
	}
	return nil
}

// LabelRules returns the label extraction rules built from the configured ranges.
func (c *Config) LabelRules() []labels.Rule {
	rules := labels.DefaultRules()
	for i, r := range []LineRange{c.Labels.Country, c.Labels.City, c.Labels.State} {
		rules[i].Start, rules[i].End = r.Start, r.End
	}
	return rules
}

// UsesS3 reports whether any input or output lives in S3.
func (c *Config) UsesS3() bool {
	for _, p := range []string{
		c.Paths.SourceRoot, c.Paths.DestinationRoot,
		c.Paths.ImmigrationFile, c.Paths.LabelsFile, c.Paths.TemperatureFile, c.Paths.DemographyFile,
	} {
		if storage.IsS3(p) {
			return true
		}
	}
	return false
}

// Source resolves an input file name against the source root.
func (c *Config) Source(name string) string {
	return storage.Resolve(c.Paths.SourceRoot, name)
}

// Destination returns the output location of a table.
func (c *Config) Destination(tableName string) string {
	return storage.Resolve(c.Paths.DestinationRoot, tableName)
}
