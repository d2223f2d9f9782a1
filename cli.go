package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/humblenginr/yt_listening_comp/config"
	"github.com/humblenginr/yt_listening_comp/exercise"
	"github.com/humblenginr/yt_listening_comp/llm"
	"github.com/humblenginr/yt_listening_comp/pipeline"
	"github.com/humblenginr/yt_listening_comp/scraper"
	"github.com/humblenginr/yt_listening_comp/store"
)

type Context struct {
	LogLevel    string `env:"LOG_LEVEL" default:"info" enum:"error,warn,info,debug,trace" help:"Set the level of logs to output [${enum}]"`
	LogFormat   string `env:"LOG_FORMAT" default:"default" enum:"default,text,json" help:"Set the format of logs to output [${enum}]"`
	Config      string `env:"LISTENING_CONFIG" type:"path" help:"YAML config file merged onto the defaults"`
	Language    string `short:"l" env:"LISTENING_LANGUAGE" help:"Language of the source videos, overrides the config file"`
	APIKey      string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"OpenAI API key"`
	MetricsFile string `type:"path" help:"Write prometheus metrics to this textfile when done"`
}

var CLI struct {
	Context `embed:""`

	Run        RunCMD        `cmd:"" help:"Turn a video into listening exercises"`
	Sequences  SequencesCMD  `cmd:"" help:"Print the dialogue sequences found in a video's transcript"`
	Transcribe TranscribeCMD `cmd:"" help:"Transcribe every audio segment of a directory"`
	Query      QueryCMD      `cmd:"" help:"Search stored exercises by topic"`
}

func (c *Context) load() (config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return cfg, err
	}
	if c.Language != "" {
		cfg.Language = c.Language
	}
	cfg.OpenAI.APIKey = c.APIKey
	return cfg, nil
}

func (c *Context) client(cfg config.Config) (*llm.Client, error) {
	if cfg.OpenAI.APIKey == "" && cfg.OpenAI.BaseURL == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	return llm.New(cfg.OpenAI), nil
}

func (c *Context) writeMetrics(reg *prometheus.Registry) {
	if c.MetricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(c.MetricsFile, reg); err != nil {
		xlog.Warn("could not write metrics", "file", c.MetricsFile, "error", err)
	}
}

func captions(cfg config.Config) *scraper.YtdlpCaptions {
	return &scraper.YtdlpCaptions{Binary: cfg.Tools.YtDlp, Timeout: cfg.Timeouts.Fetch}
}

func transcriber(cfg config.Config, client *llm.Client) *scraper.Transcriber {
	return &scraper.Transcriber{STT: client, Language: cfg.Language, Timeout: cfg.Timeouts.Transcription}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

type RunCMD struct {
	Locator string `arg:"" help:"YouTube URL or video id"`
	NoSave  bool   `help:"Do not archive the run or index its exercises"`
	Output  string `short:"o" type:"path" help:"Write the run report here instead of stdout"`
}

func (r *RunCMD) Run(c *Context) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	client, err := c.client(cfg)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	defer c.writeMetrics(reg)

	p := &pipeline.Pipeline{
		Transcripts: captions(cfg),
		Slicer: &scraper.Slicer{
			Audio: &scraper.Ytdlp{
				Binary:     cfg.Tools.YtDlp,
				MaxRetries: cfg.Retries.Download,
				Timeout:    cfg.Timeouts.Download,
			},
			FFmpeg:  cfg.Tools.FFmpeg,
			WorkDir: cfg.WorkDir,
			Timeout: cfg.Timeouts.Slice,
		},
		Transcriber: transcriber(cfg, client),
		Generator: &exercise.Generator{
			LLM:      client,
			Language: cfg.Language,
			Timeout:  cfg.Timeouts.Generation,
		},
		Options: pipeline.Options{
			Language:          cfg.Language,
			Sequence:          cfg.Sequence,
			Workers:           cfg.Workers,
			TranscribeRetries: cfg.Retries.Transcription,
			GenerateRetries:   cfg.Retries.Generation,
			TranscribeTimeout: cfg.Timeouts.Transcription,
			GenerateTimeout:   cfg.Timeouts.Generation,
		},
		Metrics: pipeline.NewMetrics(reg),
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := p.Run(ctx, r.Locator)
	if err != nil {
		return fmt.Errorf("run stopped at %s: %w", report.Stage, err)
	}
	if perr := report.Partial(); perr != nil {
		xlog.Warn("some segments failed", "error", perr)
	}

	if !r.NoSave && len(report.Exercises) > 0 {
		s, err := store.Open(cfg.DataDir, client.Embed)
		if err != nil {
			return err
		}
		saved, err := s.SaveRun(ctx, report)
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		xlog.Info("run archived", "metadata", saved.MetadataFile, "exercises", saved.Exercises)
	}

	if r.Output == "" {
		return printJSON(report)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.Output, data, 0o644)
}

type SequencesCMD struct {
	Locator string `arg:"" help:"YouTube URL or video id"`
}

func (s *SequencesCMD) Run(c *Context) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	id, err := scraper.ParseVideoID(s.Locator)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	entries, err := captions(cfg).Fetch(ctx, id, cfg.Language)
	if err != nil {
		return err
	}
	sequences := scraper.SegmentSequences(entries, cfg.Sequence)
	if len(sequences) == 0 {
		xlog.Warn("no sequences found", "entries", len(entries), "min_entries", cfg.Sequence.MinEntries)
	}
	for _, seq := range sequences {
		fmt.Printf("Sequence %d: %s -> %s\n", seq.Ordinal, seq.Start, seq.End)
	}
	return nil
}

type TranscribeCMD struct {
	Dir string `arg:"" type:"existingdir" help:"Directory holding the audio segments"`
}

func (t *TranscribeCMD) Run(c *Context) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	client, err := c.client(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	results, err := transcriber(cfg, client).TranscribeDir(ctx, t.Dir)
	if err != nil {
		return err
	}
	path, err := scraper.WriteResults(t.Dir, results)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	xlog.Info("transcription done", "results", path, "segments", len(results), "failed", failed)
	return nil
}

type QueryCMD struct {
	Topic string `arg:"" help:"Topic to search for"`
	Limit int    `short:"n" default:"10" help:"Maximum number of exercises"`
}

func (q *QueryCMD) Run(c *Context) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	client, err := c.client(cfg)
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.DataDir, client.Embed)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	hits, err := s.QueryByTopic(ctx, q.Topic, q.Limit)
	if err != nil {
		return err
	}
	for i := range hits {
		if _, err := os.Stat(hits[i].AudioFile); err != nil {
			xlog.Warn("archived audio missing", "id", hits[i].ID, "path", filepath.Base(hits[i].AudioFile))
		}
	}
	return printJSON(hits)
}
