// Package tradelog records every finished arbitrage attempt to a
// line-delimited, append-only JSON file (§6 operator interface), with an
// optional best-effort Postgres mirror for ad hoc querying. The JSONL
// file is the durable record; a mirror failure never blocks or loses an
// append to it.
package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/axiomtrade/spotarb/internal/model"
)

// Sink receives a completed log record after it has been durably
// appended to the JSONL file. A Sink failure is logged and otherwise
// ignored; it must never cause Append to fail or block for long.
type Sink interface {
	Write(ctx context.Context, entry *model.CompletedArbitrageLog) error
	Close() error
}

// Store is the append-only writer. One Store is shared by every cycle; calls
// to Append are safe for concurrent use, serialized by an internal mutex
// so interleaved writes never tear a JSON line.
type Store struct {
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	sinks []Sink
	log   zerolog.Logger
}

// Open creates (or appends to) the JSONL file at path, creating parent
// directories as needed.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tradelog: create directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tradelog: open %s: %w", path, err)
	}

	return &Store{
		file: f,
		enc:  json.NewEncoder(f),
		log:  log.With().Str("component", "tradelog").Logger(),
	}, nil
}

// AddSink registers a best-effort mirror. Sinks are invoked in
// registration order after the JSONL append has already succeeded.
func (l *Store) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Append durably writes entry to the JSONL file, then fans it out to
// every registered sink. The JSONL file is the record of truth (§6); a
// downstream mirror outage must never prevent or delay recording a
// finished trade, so sink errors are logged, not returned.
func (l *Store) Append(ctx context.Context, entry *model.CompletedArbitrageLog) error {
	l.mu.Lock()
	err := l.enc.Encode(entry)
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("tradelog: append: %w", err)
	}

	l.mu.Lock()
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.Unlock()

	for _, s := range sinks {
		if err := s.Write(ctx, entry); err != nil {
			l.log.Warn().
				Str("opportunity_id", entry.OpportunityID.String()).
				Err(err).
				Msg("trade log mirror write failed")
		}
	}

	return nil
}

// Close closes the JSONL file and every registered sink, collecting (but
// not aborting on) individual close errors.
func (l *Store) Close() error {
	l.mu.Lock()
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
