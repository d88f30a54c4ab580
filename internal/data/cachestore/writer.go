package cachestore

import (
	"fmt"
	"sync"
	"time"
)

// WriterConfig controls when the Writer flushes.
type WriterConfig struct {
	// BatchSize defaults to 256.
	BatchSize int
	// FlushInterval defaults to 1s.
	FlushInterval time.Duration
}

func (c WriterConfig) batchSize() int {
	if c.BatchSize <= 0 {
		return 256
	}
	return c.BatchSize
}

func (c WriterConfig) flushInterval() time.Duration {
	if c.FlushInterval <= 0 {
		return time.Second
	}
	return c.FlushInterval
}

// Writer collects resolve entries and saves them in batches from a single
// goroutine, so builds never wait on SQLite.
type Writer struct {
	store *Store
	cfg   WriterConfig

	ch        chan Entry
	flushCh   chan chan error
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	errMu   sync.Mutex
	lastErr error
}

// NewWriter starts the writer goroutine. Close drains it.
func NewWriter(store *Store, cfg WriterConfig) *Writer {
	w := &Writer{
		store:   store,
		cfg:     cfg,
		ch:      make(chan Entry, cfg.batchSize()*2),
		flushCh: make(chan chan error, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit queues e. A full queue falls back to a direct write.
func (w *Writer) Submit(e Entry) {
	select {
	case w.ch <- e:
	default:
		w.record(w.store.SaveEntries([]Entry{e}))
	}
}

// Flush writes everything submitted so far.
func (w *Writer) Flush() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	result := make(chan error, 1)
	select {
	case w.flushCh <- result:
	case <-w.done:
		return nil
	}
	return <-result
}

// Close flushes pending entries and stops the goroutine. It returns the last
// background write error, if any.
func (w *Writer) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.drainChannel()
	})
	if err != nil {
		return err
	}
	return w.Err()
}

// Err returns the most recent error from a background flush.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.lastErr
}

func (w *Writer) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	w.lastErr = err
	w.errMu.Unlock()
}

func (w *Writer) run() {
	defer w.wg.Done()

	batch := make([]Entry, 0, w.cfg.batchSize())
	ticker := time.NewTicker(w.cfg.flushInterval())
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.writeBatch(batch)
		batch = batch[:0]
		return err
	}

	for {
		select {
		case e := <-w.ch:
			batch = append(batch, e)
			if len(batch) >= w.cfg.batchSize() {
				drainPending(&batch, w.ch)
				w.record(flush())
				ticker.Reset(w.cfg.flushInterval())
			}
		case result := <-w.flushCh:
			drainPending(&batch, w.ch)
			err := flush()
			w.record(err)
			result <- err
		case <-ticker.C:
			drainPending(&batch, w.ch)
			w.record(flush())
		case <-w.done:
			drainPending(&batch, w.ch)
			err := flush()
			w.record(err)
			select {
			case result := <-w.flushCh:
				result <- err
			default:
			}
			return
		}
	}
}

func (w *Writer) writeBatch(entries []Entry) error {
	if err := w.store.SaveEntries(entries); err != nil {
		return fmt.Errorf("cache writer: %w", err)
	}
	return nil
}

func (w *Writer) drainChannel() error {
	var entries []Entry
	drainPending(&entries, w.ch)
	if len(entries) == 0 {
		return nil
	}
	return w.writeBatch(entries)
}

// drainPending moves queued entries into batch without blocking, so a
// Submit followed by Flush always sees the submitted entry.
func drainPending(batch *[]Entry, ch <-chan Entry) {
	for {
		select {
		case e := <-ch:
			*batch = append(*batch, e)
		default:
			return
		}
	}
}
