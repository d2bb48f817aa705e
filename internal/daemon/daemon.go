// Package daemon watches an inbox directory for new images and turns them
// into study entries automatically.
//
// The daemon:
//  1. Watches the inbox for new image files
//  2. Submits each one to the analysis gateway (debounced, so a burst of
//     copied files is processed once things settle)
//  3. Stores the extracted entries through the study service
//  4. Triggers a sync run after each processed batch
//  5. Handles graceful shutdown
//
// Processed files are moved into done/ (or failed/) inside the inbox so a
// restart never re-submits them.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karuta-app/karuta/internal/gateway"
	"github.com/karuta-app/karuta/internal/study"
	"github.com/karuta-app/karuta/internal/syncer"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds daemon configuration.
type Config struct {
	// DebounceInterval is how long a file must sit unchanged before it is
	// processed. Batches rapid copies together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// NewFileLogger builds a logger that tees daemon activity to stderr and a
// size-rotated log file.
func NewFileLogger(path string, maxSizeMB, maxBackups int) *log.Logger {
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
	return log.New(io.MultiWriter(os.Stderr, rotated), "[daemon] ", log.LstdFlags)
}

// Daemon orchestrates inbox watching, analysis and sync triggering.
type Daemon struct {
	svc      *study.Service
	analyzer gateway.Analyzer
	sync     syncer.Syncer
	inbox    string
	config   *Config

	watcher *fsnotify.Watcher

	pending   map[string]time.Time // path -> last event time
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon watching inbox. sync may be nil (offline mode).
func New(svc *study.Service, analyzer gateway.Analyzer, sync syncer.Syncer, inbox string, config *Config) (*Daemon, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if inbox == "" {
		return nil, fmt.Errorf("inbox cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		svc:      svc,
		analyzer: analyzer,
		sync:     sync,
		inbox:    inbox,
		config:   config,
		watcher:  watcher,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. Any images already sitting in the inbox are
// processed first. Blocks until ctx is cancelled or setup fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting inbox daemon")

	for _, dir := range []string{d.inbox, d.doneDir(), d.failedDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	// Catch up on anything dropped in while we weren't running.
	if err := d.processExisting(); err != nil {
		return fmt.Errorf("initial inbox scan failed: %w", err)
	}

	if err := d.watcher.Add(d.inbox); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.inbox)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processPendingLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()
	d.svc.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// mediaTypes maps recognized image extensions to their MIME type.
var mediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// processExisting submits images already present in the inbox.
func (d *Daemon) processExisting() error {
	entries, err := os.ReadDir(d.inbox)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}

	processed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(d.inbox, entry.Name())
		if _, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]; !ok {
			continue
		}
		d.processImage(path)
		processed++
	}

	if processed > 0 {
		d.triggerSync()
	}
	return nil
}

// watchFileEvents queues image file events for debounced processing.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, known := mediaTypes[strings.ToLower(filepath.Ext(event.Name))]; !known {
				continue
			}

			d.pendingMu.Lock()
			d.pending[event.Name] = time.Now()
			d.pendingMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPendingLoop drains the debounce queue on a ticker.
func (d *Daemon) processPendingLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPending()
		}
	}
}

// processPending processes files that have sat unchanged for at least the
// debounce interval, then triggers one sync for the batch.
func (d *Daemon) processPending() {
	now := time.Now()

	d.pendingMu.Lock()
	var ready []string
	for path, queuedAt := range d.pending {
		if now.Sub(queuedAt) >= d.config.DebounceInterval {
			ready = append(ready, path)
			delete(d.pending, path)
		}
	}
	d.pendingMu.Unlock()

	if len(ready) == 0 {
		return
	}

	for _, path := range ready {
		d.processImage(path)
	}
	d.triggerSync()
}

// processImage submits one image and files it under done/ or failed/.
func (d *Daemon) processImage(path string) {
	mediaType := mediaTypes[strings.ToLower(filepath.Ext(path))]

	image, err := os.ReadFile(path)
	if err != nil {
		// The file may have been moved or is still being written; leave it
		// for a later event.
		d.config.Logger.Printf("WARNING: failed to read %s: %v", path, err)
		return
	}

	extraction, err := d.analyzer.Analyze(d.ctx, image, mediaType)
	if err != nil {
		d.config.Logger.Printf("Analysis failed for %s: %v", filepath.Base(path), err)
		d.fileAway(path, d.failedDir())
		return
	}

	if err := d.svc.AddExtraction(d.ctx, extraction); err != nil {
		d.config.Logger.Printf("Failed to store entries from %s: %v", filepath.Base(path), err)
		d.fileAway(path, d.failedDir())
		return
	}

	d.config.Logger.Printf("Processed %s: %d vocabulary, %d grammar",
		filepath.Base(path), len(extraction.Vocabulary), len(extraction.Grammar))
	d.fileAway(path, d.doneDir())
}

// triggerSync kicks off one reconciliation run for the batch. Skipped
// silently when offline or when a run is already in flight.
func (d *Daemon) triggerSync() {
	if d.sync == nil {
		return
	}
	if _, err := d.sync.Sync(d.ctx); err != nil {
		d.config.Logger.Printf("Sync failed: %v", err)
	}
}

func (d *Daemon) fileAway(path, dir string) {
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		d.config.Logger.Printf("WARNING: failed to move %s to %s: %v", path, dir, err)
	}
}

func (d *Daemon) doneDir() string   { return filepath.Join(d.inbox, "done") }
func (d *Daemon) failedDir() string { return filepath.Join(d.inbox, "failed") }
