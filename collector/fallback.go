package collector

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"gtasite/api/logger"
	"gtasite/api/models"
)

// FallbackEntry is the locally logged form of an event whose backend
// write failed. Diagnostic only; entries are never replayed.
type FallbackEntry struct {
	EventType string            `json:"eventType"`
	Page      string            `json:"page"`
	ElementID string            `json:"elementId,omitempty"`
	EventData *models.EventData `json:"eventData,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// FallbackLog appends failed events to a local JSON-lines file,
// best-effort. A failure to log the fallback itself is only logged.
type FallbackLog struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

func NewFallbackLog(path string, log *logger.Logger) *FallbackLog {
	return &FallbackLog{path: path, log: log.With("component", "fallback")}
}

func (f *FallbackLog) Append(eventType, page, elementID string, data *models.EventData) {
	entry := FallbackEntry{
		EventType: eventType,
		Page:      page,
		ElementID: elementID,
		EventData: data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		f.log.Warn("failed to open fallback log", "path", f.path, "error", err)
		return
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		f.log.Warn("failed to append fallback entry", "path", f.path, "error", err)
	}
}

// Entries reads the fallback log back for the admin export surface.
func (f *FallbackLog) Entries() []FallbackEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil
	}

	var entries []FallbackEntry
	dec := json.NewDecoder(bytes.NewReader(raw))
	for {
		var e FallbackEntry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries
}
