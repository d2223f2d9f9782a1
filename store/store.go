// Package store archives finished runs on disk and indexes their exercises
// in a persistent vector collection that can be searched by topic.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/mudler/xlog"
	chromem "github.com/philippgille/chromem-go"

	"github.com/humblenginr/yt_listening_comp/exercise"
	"github.com/humblenginr/yt_listening_comp/pipeline"
)

const (
	collectionName = "listening_exercises"
	archiveLayout  = "20060102_150405"
)

// Store keeps audio under <data>/audio, run metadata under <data>/metadata
// and the index under <data>/vectordb.
type Store struct {
	audioDir    string
	metadataDir string

	db         *chromem.DB
	collection *chromem.Collection
	flock      *flock.Flock
	sync.Mutex

	Now func() time.Time
}

// Open creates the data layout under dataDir and loads the index. embed
// turns text into the vectors used for storage and topic queries.
func Open(dataDir string, embed chromem.EmbeddingFunc) (*Store, error) {
	s := &Store{
		audioDir:    filepath.Join(dataDir, "audio"),
		metadataDir: filepath.Join(dataDir, "metadata"),
	}
	dbDir := filepath.Join(dataDir, "vectordb")
	for _, d := range []string{s.audioDir, s.metadataDir, dbDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}

	s.flock = flock.New(dbDir + ".lock")
	if err := s.flock.Lock(); err != nil {
		return nil, fmt.Errorf("lock index: %w", err)
	}
	defer s.flock.Unlock()

	db, err := chromem.NewPersistentDB(dbDir, false)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	collection, err := db.GetOrCreateCollection(collectionName,
		map[string]string{"description": "listening comprehension exercises"}, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	s.db = db
	s.collection = collection

	xlog.Debug("store opened", "dir", dataDir, "exercises", collection.Count())
	return s, nil
}

// Saved describes one archived run.
type Saved struct {
	SourceID     string            `json:"video_id"`
	SourceURL    string            `json:"youtube_url"`
	RunID        string            `json:"run_id"`
	Timestamp    string            `json:"processing_date"`
	AudioFiles   map[string]string `json:"audio_files"`
	Exercises    int               `json:"exercises"`
	Failures     int               `json:"failures"`
	MetadataFile string            `json:"-"`
}

// SaveRun moves the run's audio segments into the archive, writes the run
// metadata and indexes every exercise under its "{source}_{ordinal}" id.
// The audio paths in report are rewritten to the archived files. Indexing
// an id twice replaces the earlier document.
func (s *Store) SaveRun(ctx context.Context, report *pipeline.Report) (*Saved, error) {
	if report.SourceID == "" {
		return nil, errors.New("report has no source id")
	}
	ts := s.now().Format(archiveLayout)
	saved := &Saved{
		SourceID:   report.SourceID,
		SourceURL:  report.SourceURL,
		RunID:      report.RunID,
		Timestamp:  ts,
		AudioFiles: map[string]string{},
		Exercises:  len(report.Exercises),
		Failures:   len(report.Failures),
	}

	archive := filepath.Join(s.audioDir, archiveName(report.SourceID, ts))
	if report.Dir != "" {
		if err := moveSegments(report.Dir, archive, saved.AudioFiles); err != nil {
			return nil, err
		}
		relocate(report, saved.AudioFiles)
	}

	saved.MetadataFile = filepath.Join(s.metadataDir, archiveName(report.SourceID, ts)+".json")
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(saved.MetadataFile, data, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	docs := make([]chromem.Document, 0, len(report.Exercises))
	for _, ex := range report.Exercises {
		doc, err := document(report, ex, ts)
		if err != nil {
			return nil, err
		}
		if doc.Content == "" {
			xlog.Warn("skipping exercise without dialogue", "id", ex.ID)
			continue
		}
		docs = append(docs, doc)
	}
	if err := s.add(ctx, docs); err != nil {
		return nil, err
	}

	xlog.Info("saved run", "source", report.SourceID, "archive", archive, "indexed", len(docs))
	return saved, nil
}

func (s *Store) add(ctx context.Context, docs []chromem.Document) error {
	if len(docs) == 0 {
		return nil
	}
	s.flock.Lock()
	defer s.flock.Unlock()
	s.Lock()
	defer s.Unlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("index exercises: %w", err)
	}
	return nil
}

func document(report *pipeline.Report, ex pipeline.GeneratedExercise, ts string) (chromem.Document, error) {
	raw, err := json.Marshal(ex.Exercise)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("marshal exercise %s: %w", ex.ID, err)
	}
	return chromem.Document{
		ID:      ex.ID,
		Content: ex.DialogueText,
		Metadata: map[string]string{
			"source_url":      report.SourceURL,
			"source_id":       report.SourceID,
			"run_id":          report.RunID,
			"sequence_number": strconv.Itoa(ex.Ordinal),
			"audio_file":      filepath.Base(ex.AudioPath),
			"timestamp":       ts,
			"exercise_json":   string(raw),
		},
	}, nil
}

// Hit is one exercise found by a topic query.
type Hit struct {
	ID         string             `json:"id"`
	SourceURL  string             `json:"source_url"`
	Ordinal    int                `json:"sequence_number"`
	AudioFile  string             `json:"audio_file"`
	Similarity float32            `json:"similarity"`
	Exercise   *exercise.Exercise `json:"exercise"`
}

// QueryByTopic returns up to n exercises closest to topic, best first, with
// the archived audio path attached.
func (s *Store) QueryByTopic(ctx context.Context, topic string, n int) ([]Hit, error) {
	s.Lock()
	defer s.Unlock()

	if count := s.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := s.collection.Query(ctx, topic, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", topic, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		ex := &exercise.Exercise{}
		if err := json.Unmarshal([]byte(r.Metadata["exercise_json"]), ex); err != nil {
			xlog.Warn("skipping unreadable exercise", "id", r.ID, "error", err)
			continue
		}
		ordinal, _ := strconv.Atoi(r.Metadata["sequence_number"])
		hits = append(hits, Hit{
			ID:         r.ID,
			SourceURL:  r.Metadata["source_url"],
			Ordinal:    ordinal,
			AudioFile:  filepath.Join(s.audioDir, archiveName(r.Metadata["source_id"], r.Metadata["timestamp"]), r.Metadata["audio_file"]),
			Similarity: r.Similarity,
			Exercise:   ex,
		})
	}
	return hits, nil
}

// Count is the number of indexed exercises.
func (s *Store) Count() int {
	s.Lock()
	defer s.Unlock()
	return s.collection.Count()
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func archiveName(sourceID, ts string) string { return sourceID + "_" + ts }

// relocate points the report's segments and exercises at their new paths.
func relocate(report *pipeline.Report, moved map[string]string) {
	for i := range report.Segments {
		if to, ok := moved[filepath.Base(report.Segments[i].Path)]; ok {
			report.Segments[i].Path = to
		}
	}
	for i := range report.Exercises {
		if to, ok := moved[filepath.Base(report.Exercises[i].AudioPath)]; ok {
			report.Exercises[i].AudioPath = to
		}
	}
}

// moveSegments renames every mp3 of src into dst and records name -> new path.
func moveSegments(src, dst string, moved map[string]string) error {
	matches, err := filepath.Glob(filepath.Join(src, "*.mp3"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	for _, from := range matches {
		to := filepath.Join(dst, filepath.Base(from))
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("move %s: %w", filepath.Base(from), err)
		}
		moved[filepath.Base(from)] = to
	}
	return nil
}
