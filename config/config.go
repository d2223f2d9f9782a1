// Package config loads the optional YAML config file on top of the
// built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/humblenginr/yt_listening_comp/llm"
	"github.com/humblenginr/yt_listening_comp/scraper"
)

type Timeouts struct {
	Fetch         time.Duration `yaml:"fetch"`
	Download      time.Duration `yaml:"download"`
	Slice         time.Duration `yaml:"slice"`
	Transcription time.Duration `yaml:"transcription"`
	Generation    time.Duration `yaml:"generation"`
}

type Retries struct {
	Download      uint64 `yaml:"download"`
	Transcription uint64 `yaml:"transcription"`
	Generation    uint64 `yaml:"generation"`
}

type Tools struct {
	YtDlp  string `yaml:"yt_dlp"`
	FFmpeg string `yaml:"ffmpeg"`
}

type Config struct {
	Language string                  `yaml:"language"`
	WorkDir  string                  `yaml:"work_dir"`
	DataDir  string                  `yaml:"data_dir"`
	Workers  int                     `yaml:"workers"`
	Sequence scraper.SequenceOptions `yaml:"sequence"`
	Timeouts Timeouts                `yaml:"timeouts"`
	Retries  Retries                 `yaml:"retries"`
	Tools    Tools                   `yaml:"tools"`
	OpenAI   llm.Config              `yaml:"openai"`
}

func Default() Config {
	return Config{
		Language: "fr",
		WorkDir:  "segmented_audio",
		DataDir:  "data",
		Workers:  4,
		Sequence: scraper.DefaultSequenceOptions(),
		Timeouts: Timeouts{
			Fetch:         time.Minute,
			Download:      10 * time.Minute,
			Slice:         2 * time.Minute,
			Transcription: 2 * time.Minute,
			Generation:    2 * time.Minute,
		},
		Retries: Retries{Download: 2, Transcription: 2},
		Tools:   Tools{YtDlp: "yt-dlp", FFmpeg: "ffmpeg"},
		OpenAI:  llm.DefaultConfig(),
	}
}

// Load reads path and merges it onto Default. An empty path returns the
// defaults. Zero values in the file leave the default in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	return Parse(f)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var file Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
		return cfg, fmt.Errorf("merge config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Language == "" {
		errs = append(errs, errors.New("language is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if err := c.Sequence.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
