// Package config loads the yaml run configuration for clustering and
// enrichment jobs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Cluster ClusterConfig `yaml:"cluster"`
	Paths   PathsConfig   `yaml:"paths"`
}

type ClusterConfig struct {
	// K is the neighbor count per entity in the similarity graphs.
	K int `yaml:"k"`

	// GenomeResolution and ProteinResolution tune the two hierarchy
	// levels independently; higher means more, smaller clusters.
	GenomeResolution  float64 `yaml:"genome_resolution"`
	ProteinResolution float64 `yaml:"protein_resolution"`

	// Workers bounds all internal parallelism. 1 is fully sequential
	// and deterministic; 0 means GOMAXPROCS.
	Workers int `yaml:"workers"`

	Seed int64 `yaml:"seed"`

	// Normalized switches similarity to inner product over
	// L2-normalized embeddings instead of Gaussian-kernel distances.
	Normalized bool `yaml:"normalized"`
}

type PathsConfig struct {
	GenomeEmbeddings  string `yaml:"genome_embeddings"`
	ProteinEmbeddings string `yaml:"protein_embeddings"`
	Pointer           string `yaml:"pointer"`
	AnnotationsDB     string `yaml:"annotations_db"`
	Output            string `yaml:"output"`
}

// Default returns the configuration used when a field is absent.
func Default() Config {
	return Config{
		Cluster: ClusterConfig{
			K:                 15,
			GenomeResolution:  0.5,
			ProteinResolution: 1.0,
			Workers:           0,
			Seed:              1,
		},
	}
}

// Load reads the yaml file at path over the defaults and validates the
// result. An empty path returns the defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Cluster.K <= 0 {
		return fmt.Errorf("config: cluster.k must be positive, have %d", c.Cluster.K)
	}
	if c.Cluster.GenomeResolution <= 0 {
		return fmt.Errorf("config: cluster.genome_resolution must be positive, have %v", c.Cluster.GenomeResolution)
	}
	if c.Cluster.ProteinResolution <= 0 {
		return fmt.Errorf("config: cluster.protein_resolution must be positive, have %v", c.Cluster.ProteinResolution)
	}
	if c.Cluster.Workers < 0 {
		return fmt.Errorf("config: cluster.workers must be >= 0, have %d", c.Cluster.Workers)
	}
	return nil
}
