package logsink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ossuary-pi/ossuary/pkg/errors"
	"github.com/ossuary-pi/ossuary/pkg/logging"
)

// DefaultPath is the well-known location of the managed command output log.
const DefaultPath = "/var/log/ossuary/startup.log"

const timestampLayout = "2006-01-02 15:04:05"

// Sink is the append-only output log owned exclusively by the supervisor.
// Lines carry the form "[timestamp] PREFIX: message". The status layer tails
// it; nothing else writes to it, so a single internal mutex suffices.
type Sink struct {
	path   string
	logger logging.Logger

	mu   sync.Mutex
	file *os.File
}

// Open creates or opens the sink file for appending. An empty path selects
// DefaultPath.
func Open(path string, logger logging.Logger) (*Sink, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewIOError("failed to create log directory", err).WithContext("path", path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.NewIOError("failed to open log file", err).WithContext("path", path)
	}

	return &Sink{
		path:   path,
		logger: logger,
		file:   file,
	}, nil
}

// Path returns the backing file path.
func (s *Sink) Path() string {
	return s.path
}

// Append writes one timestamped line to the sink.
func (s *Sink) Append(prefix, message string) {
	line := fmt.Sprintf("[%s] %s: %s\n", time.Now().Format(timestampLayout), prefix, message)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	if _, err := s.file.WriteString(line); err != nil {
		s.logger.Warnf("Failed to append to log sink, path: %s, error: %v", s.path, err)
	}
}

// Appendf formats a message and appends it as one line.
func (s *Sink) Appendf(prefix, format string, args ...interface{}) {
	s.Append(prefix, fmt.Sprintf(format, args...))
}

// ForwardLines copies the reader line by line into the sink under the given
// prefix until EOF. Intended to run in its own goroutine, attached to the
// managed command's combined output stream.
func (s *Sink) ForwardLines(prefix string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		s.Append(prefix, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debugf("Output forwarding ended, prefix: %s, error: %v", prefix, err)
	}
}

// Tail returns the last n lines of the sink file.
func (s *Sink) Tail(n int) ([]string, error) {
	return TailFile(s.path, n)
}

// Close closes the sink file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// TailFile returns the last n lines of a log file. A missing file yields an
// empty tail, matching "nothing logged yet".
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError("failed to read log file", err).WithContext("path", path)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
