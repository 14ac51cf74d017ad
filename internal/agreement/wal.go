package agreement

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// decreeLogEntry is one durably-recorded decree: the round id a value was
// learned under, and the value itself. The log is append-only, fsync'd on
// every write, and replayed in full on restart.
type decreeLogEntry struct {
	RoundID uint64 `json:"round_id"`
	Value   string `json:"value"`
}

// decreeLog is the on-disk counterpart of DataStore: every Learn() is
// appended here before (and in addition to) updating the in-memory map, so
// a restarted node can recover what it had already learned. Plain
// in-memory remains the default when no path is given.
type decreeLog struct {
	mu   sync.Mutex
	file *os.File
}

func openDecreeLog(path string) (*decreeLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("agreement: open decree log: %w", err)
	}
	return &decreeLog{file: f}, nil
}

func (l *decreeLog) append(e decreeLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return err
	}
	return l.file.Sync()
}

// replay reads every previously-logged decree from the start of the file.
func (l *decreeLog) replay() ([]decreeLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, 0); err != nil {
		return nil, err
	}

	var entries []decreeLogEntry
	scanner := bufio.NewScanner(l.file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e decreeLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// Corrupt entry — skip rather than refuse to start.
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

func (l *decreeLog) close() error {
	return l.file.Close()
}

// NewDurableDataStore opens (or creates) a decree log at path, replays it
// into an in-memory DataStore, and returns a store whose Set calls are
// additionally appended to the log. Callers that never need restart
// recovery should use NewDataStore instead.
func NewDurableDataStore(path string) (*DataStore, error) {
	log, err := openDecreeLog(path)
	if err != nil {
		return nil, err
	}

	entries, err := log.replay()
	if err != nil {
		log.close()
		return nil, fmt.Errorf("agreement: replay decree log: %w", err)
	}

	s := NewDataStore()
	for _, e := range entries {
		s.data[e.RoundID] = e.Value
	}
	s.log = log
	return s, nil
}

// Close releases the underlying log file, if this store is durable.
func (s *DataStore) Close() error {
	if s.log == nil {
		return nil
	}
	return s.log.close()
}
