package logsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"github.com/hpcloud/tail/watch"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tinytelemetry/nginx-collector/internal/model"
)

const (
	// DefaultFileBuffer is the default channel buffer size for file lines.
	DefaultFileBuffer = 1024

	waitLogInterval = 30 * time.Second
)

// pollOnce sets the polling watcher's interval. The value is package-level
// in hpcloud/tail, so it applies to every tail in the process; it is written
// before the first tail starts so no watcher observes the write.
var pollOnce sync.Once

func setPollInterval() {
	pollOnce.Do(func() { watch.POLL_DURATION = model.TailPollInterval })
}

// FileConfig holds tunable parameters for the file source.
type FileConfig struct {
	Path         string
	Name         string        // defaults to the file's base name
	WaitInterval time.Duration // existence poll, defaults to model.FileWaitInterval
	ReplayLines  int           // last complete lines re-read on start; 0 disables
	BufferSize   int
	Logger       logrus.FieldLogger
}

// FileSource tails one log file. It waits for the file to exist, optionally
// replays its last few lines, then follows appended lines from the position
// reached at start.
type FileSource struct {
	path         string
	name         string
	waitInterval time.Duration
	replayLines  int
	logger       logrus.FieldLogger

	ch      chan string
	cancel  context.CancelFunc
	started chan struct{}
	done    chan struct{}

	mu     sync.Mutex
	state  model.StreamState
	err    error
	offset int64
}

// NewFileSource creates a FileSource that reads in a background goroutine
// until ctx is cancelled or Stop is called.
func NewFileSource(ctx context.Context, cfg FileConfig) *FileSource {
	name := cfg.Name
	if name == "" {
		name = filepath.Base(cfg.Path)
	}
	waitInterval := cfg.WaitInterval
	if waitInterval <= 0 {
		waitInterval = model.FileWaitInterval
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultFileBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}

	setPollInterval()

	ctx, cancel := context.WithCancel(ctx)
	s := &FileSource{
		path:         cfg.Path,
		name:         name,
		waitInterval: waitInterval,
		replayLines:  cfg.ReplayLines,
		logger:       logger.WithFields(logrus.Fields{"component": "logsource", "stream": name, "path": cfg.Path}),
		ch:           make(chan string, bufferSize),
		cancel:       cancel,
		started:      make(chan struct{}),
		done:         make(chan struct{}),
		state:        model.StateAwaiting,
	}
	go s.run(ctx)
	return s
}

func (s *FileSource) Lines() <-chan string { return s.ch }
func (s *FileSource) Stop()                { s.cancel() }
func (s *FileSource) Name() string         { return s.name }

// Started is closed once the source follows the file.
func (s *FileSource) Started() <-chan struct{} { return s.started }

// Done is closed when the read goroutine has exited and Lines is closed.
func (s *FileSource) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *FileSource) State() model.StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause of a failed source, or nil.
func (s *FileSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cursor returns the byte offset just past the last line delivered.
func (s *FileSource) Cursor() model.TailCursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.TailCursor{Path: s.path, Offset: s.offset}
}

func (s *FileSource) setState(state model.StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *FileSource) fail(err error) {
	s.mu.Lock()
	s.state = model.StateFailed
	s.err = err
	s.mu.Unlock()
	s.logger.WithError(err).Error("log source failed")
}

func (s *FileSource) advance(n int64) {
	s.mu.Lock()
	s.offset += n
	s.mu.Unlock()
}

func (s *FileSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	if !s.awaitFile(ctx) {
		s.setState(model.StateStopped)
		return
	}

	start, err := s.position(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.setState(model.StateStopped)
			return
		}
		s.fail(err)
		return
	}

	t, err := tail.TailFile(s.path, tail.Config{
		Location:  &tail.SeekInfo{Offset: start, Whence: io.SeekStart},
		Follow:    true,
		ReOpen:    false,
		MustExist: true,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		s.fail(fmt.Errorf("tail %s: %w", s.path, err))
		return
	}
	defer t.Cleanup()

	s.mu.Lock()
	s.offset = start
	s.state = model.StateTailing
	s.mu.Unlock()
	close(s.started)
	s.logger.WithField("offset", start).Info("tailing log file")

	for {
		select {
		case <-ctx.Done():
			stopTail(t)
			s.setState(model.StateStopped)
			return
		case line, ok := <-t.Lines:
			if !ok {
				if ctx.Err() != nil {
					s.setState(model.StateStopped)
					return
				}
				cause := t.Err()
				if cause == nil {
					cause = errors.New("file is no longer readable")
				}
				s.fail(fmt.Errorf("tail %s ended: %w", s.path, cause))
				return
			}
			if line.Err != nil {
				s.logger.WithError(line.Err).Warn("skipping unreadable line")
				continue
			}
			s.advance(int64(len(line.Text)) + 1)
			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			if !s.send(ctx, text) {
				stopTail(t)
				s.setState(model.StateStopped)
				return
			}
		}
	}
}

// awaitFile polls until the path exists. It reports false when ctx ends first.
func (s *FileSource) awaitFile(ctx context.Context) bool {
	waitLog := rate.Sometimes{First: 1, Interval: waitLogInterval}
	for {
		_, err := os.Stat(s.path)
		if err == nil {
			return true
		}
		waitLog.Do(func() {
			entry := s.logger
			if !errors.Is(err, fs.ErrNotExist) {
				entry = entry.WithError(err)
			}
			entry.Info("waiting for log file")
		})

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.waitInterval):
		}
	}
}

// position returns the offset tailing starts from. Without replay that is
// the current file size. With replay, the last complete lines are sent first
// and tailing starts right after them.
func (s *FileSource) position(ctx context.Context) (int64, error) {
	if s.replayLines <= 0 {
		info, err := os.Stat(s.path)
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", s.path, err)
		}
		return info.Size(), nil
	}

	s.setState(model.StateReplaying)

	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	lines, end, err := lastLines(f, s.replayLines)
	if err != nil {
		return 0, fmt.Errorf("replay %s: %w", s.path, err)
	}
	s.logger.WithField("lines", len(lines)).Info("replaying last lines of log file")
	for _, line := range lines {
		if !s.send(ctx, line) {
			return 0, ctx.Err()
		}
	}
	return end, nil
}

// stopTail ends the tail goroutine. It may be blocked handing over a line,
// so Lines is drained until the goroutine closes it.
func stopTail(t *tail.Tail) {
	t.Kill(nil)
	for range t.Lines {
	}
	_ = t.Wait()
}

func (s *FileSource) send(ctx context.Context, line string) bool {
	select {
	case s.ch <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

// lastLines returns up to k trimmed, non-empty complete lines from the end
// of r in file order, and the offset just past the last complete line.
// A trailing line without a newline is not complete.
func lastLines(r io.Reader, k int) ([]string, int64, error) {
	reader := bufio.NewReader(r)
	ring := make([]string, 0, k)
	var end int64
	for {
		raw, err := reader.ReadString('\n')
		if err == io.EOF {
			return ring, end, nil
		}
		if err != nil {
			return nil, 0, err
		}
		end += int64(len(raw))
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		if len(ring) == k {
			copy(ring, ring[1:])
			ring = ring[:k-1]
		}
		ring = append(ring, text)
	}
}
