package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mnemosyne/server/internal/session"
)

// settleDelay gives a dropped file time to finish being written before
// it is picked up for transcription.
const settleDelay = 2 * time.Second

// Runner starts a transcription run for an audio file.
type Runner interface {
	Run(ctx context.Context, audioPath, sessionID string) error
}

// Watcher ingests audio files dropped into a directory. Each new file
// gets its own session and a transcription run.
type Watcher struct {
	dir      string
	sessions *session.Service
	runner   Runner
	logger   *zap.Logger
}

// New creates a watcher over the given directory.
func New(dir string, sessions *session.Service, runner Runner, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		sessions: sessions,
		runner:   runner,
		logger:   logger,
	}
}

// Watch blocks until the context is cancelled, ingesting audio files as
// they appear.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("Watching directory for dropped audio", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			go w.ingest(ctx, event.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sess, err := w.sessions.Create(ctx, name)
	if err != nil {
		w.logger.Error("Failed to create session for dropped file",
			zap.String("file", path),
			zap.Error(err))
		return
	}

	if _, err := w.sessions.SetAudioFile(ctx, sess.ID, path); err != nil {
		w.logger.Error("Failed to record audio file on session",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return
	}

	w.logger.Info("Ingesting dropped audio file",
		zap.String("file", path),
		zap.String("session_id", sess.ID))

	if err := w.runner.Run(ctx, path, sess.ID); err != nil {
		w.logger.Error("Transcription of dropped file failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
}

func isAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".ogg", ".opus", ".mp3", ".flac", ".m4a":
		return true
	}
	return false
}
