/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-regkit/log"
)

var logfLevels = map[logf.Level]log.Level{
	logf.LevelError: log.LevelError,
	logf.LevelWarn:  log.LevelWarn,
	logf.LevelInfo:  log.LevelInfo,
	logf.LevelDebug: log.LevelDebug,
}

// RecordedEntry is a single entry captured by Recorder.
// Fields contain both the entry's own fields and the ones inherited via With.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField looks up a field of the entry by key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			f := re.Fields[i]
			return &f, true
		}
	}
	return nil, false
}

// StringField returns the value of a log.String field.
func (re *RecordedEntry) StringField(key string) (string, bool) {
	f, ok := re.FindField(key)
	if !ok {
		return "", false
	}
	return string(f.Bytes), true
}

// IntField returns the value of an integer field (log.Int, log.Int64 and so on).
func (re *RecordedEntry) IntField(key string) (int64, bool) {
	f, ok := re.FindField(key)
	if !ok {
		return 0, false
	}
	return f.Int, true
}

// ErrorField returns the error stored in a log.Error field.
func (re *RecordedEntry) ErrorField(key string) (error, bool) {
	f, ok := re.FindField(key)
	if !ok {
		return nil, false
	}
	err, ok := f.Any.(error)
	return err, ok
}

// recordStore is shared by a Recorder and all loggers derived from it.
type recordStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (s *recordStore) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	level, ok := logfLevels[e.Level]
	if !ok {
		level = log.LevelInfo
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      level,
		Time:       e.Time,
		Text:       e.Text,
	})
}

func (s *recordStore) filter(fn func(entry RecordedEntry) bool, firstOnly bool) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []RecordedEntry
	for _, entry := range s.entries {
		if fn(entry) {
			found = append(found, entry)
			if firstOnly {
				break
			}
		}
	}
	return found
}

// Recorder is a log.FieldLogger that keeps all logged entries (at any level) in memory.
// Loggers derived from it via With and WithLevel write to the same storage.
// It is safe for concurrent use.
type Recorder struct {
	*log.LogfAdapter
	store *recordStore
}

// NewRecorder returns a new Recorder.
func NewRecorder() *Recorder {
	store := &recordStore{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store}
}

// With returns a Recorder sharing the storage and having additional fields.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.store}
}

// WithLevel returns a Recorder sharing the storage and ignoring messages below the level.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.store}
}

// Entries returns a copy of all recorded entries in logging order.
func (r *Recorder) Entries() []RecordedEntry {
	return r.store.filter(func(RecordedEntry) bool { return true }, false)
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntries returns all entries with the given message.
func (r *Recorder) FindEntries(msg string) []RecordedEntry {
	return r.FindAllEntriesByFilter(func(entry RecordedEntry) bool { return entry.Text == msg })
}

// FindEntryByFilter returns the first entry matching the filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.store.filter(filter, true); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns all entries matching the filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	return r.store.filter(filter, false)
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}
