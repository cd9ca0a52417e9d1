package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/bus"
	"main/internal/model"
)

var (
	ErrQueueFull  = errors.New("journal queue full")
	ErrClosed     = errors.New("journal writer closed")
	ErrNotStarted = errors.New("journal writer not started")
)

// EntryType tags one journal line.
type EntryType string

const (
	EntryReport EntryType = "report"
	EntryTrade  EntryType = "trade"
)

// Entry is one journaled event, encoded as a single JSON line.
type Entry struct {
	Type   EntryType              `json:"type"`
	At     time.Time              `json:"at"`
	Report *model.ExecutionReport `json:"report,omitempty"`
	Trade  *model.Trade           `json:"trade,omitempty"`
}

// Config tunes the journal writer.
type Config struct {
	Path          string        `json:"path"`
	QueueSize     int           `json:"queueSize"`
	FlushInterval time.Duration `json:"flushInterval"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	return c
}

// Writer appends execution reports and trades to an append-only JSONL file
// from a bounded queue. Appends never block the order pipeline; the queue
// sheds load instead.
type Writer struct {
	cfg Config
	ch  chan Entry
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

// NewWriter opens (or creates) the journal file's directory.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, errors.New("journal path required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Writer{cfg: cfg, ch: make(chan Entry, cfg.QueueSize)}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return nil
	}
	file, err := os.OpenFile(w.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx, file)
	}()
	return nil
}

// Close stops the writer and flushes buffered lines.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first write error observed, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// TryAppend enqueues an entry without blocking.
func (w *Writer) TryAppend(e Entry) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume adapts the writer as a bus consumer.
func (w *Writer) Consume(e bus.Event) {
	entry := Entry{At: time.Now()}
	switch e.Type {
	case bus.EventReport:
		entry.Type = EntryReport
		report := e.Report
		entry.Report = &report
		entry.At = report.ReportedAt
	case bus.EventTrade:
		entry.Type = EntryTrade
		trade := e.Trade
		entry.Trade = &trade
		entry.At = trade.ExecutedAt
	default:
		return
	}
	_ = w.TryAppend(entry)
}

func (w *Writer) run(ctx context.Context, file *os.File) {
	buf := bufio.NewWriter(file)
	enc := json.NewEncoder(buf)
	ticker := time.NewTicker(w.cfg.FlushInterval)

	defer func() {
		ticker.Stop()
		if err := buf.Flush(); err != nil {
			w.setErr(err)
		}
		if err := file.Sync(); err != nil {
			w.setErr(err)
		}
		if err := file.Close(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.drainNonBlocking(enc)
			return
		case e, ok := <-w.ch:
			if !ok {
				return
			}
			if err := enc.Encode(e); err != nil {
				w.setErr(err)
				return
			}
		case <-ticker.C:
			if err := buf.Flush(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) drainNonBlocking(enc *json.Encoder) {
	for {
		select {
		case e, ok := <-w.ch:
			if !ok {
				return
			}
			if err := enc.Encode(e); err != nil {
				w.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

// Read decodes every entry from a journal stream in append order.
func Read(r io.Reader) ([]Entry, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var out []Entry
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, e)
	}
}

// ReadFile decodes every entry from a journal file.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file)
}
