package mealwise

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTraceDropped is returned by AsyncTraceSink when its buffer is full.
var ErrTraceDropped = errors.New("trace buffer full, record dropped")

// TraceSink receives stage records. Implementations must not block the pipeline for long.
type TraceSink interface {
	Record(ctx context.Context, rec StageRecord) error
}

// NewTraceFilePath returns a file path based on a cleaned up model name or id to make it easier to identify traces produced with various models.
func NewTraceFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(model), ":", "_"),
	)
}

// StageRecord is one entry of a pipeline trace.
type StageRecord struct {
	RequestID  string    `json:"request_id"`
	Stage      string    `json:"stage"`
	Timestamp  time.Time `json:"timestamp"`
	Input      any       `json:"input,omitempty"`
	Output     any       `json:"output,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Confidence float64   `json:"confidence"`
	Error      string    `json:"error,omitempty"`
}

// RedactImage replaces raw image bytes with a short fingerprint.
func RedactImage(img []byte) string {
	sum := sha256.Sum256(img)
	return fmt.Sprintf("image(%d bytes, sha256:%s)", len(img), hex.EncodeToString(sum[:4]))
}

// PipelineTrace is the append-only stage log of one request. Safe for concurrent appends.
type PipelineTrace struct {
	mu        sync.Mutex
	requestID string
	records   []StageRecord
}

func NewPipelineTrace(requestID string) *PipelineTrace {
	return &PipelineTrace{requestID: requestID}
}

func (t *PipelineTrace) Append(rec StageRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec.RequestID = t.requestID
	t.records = append(t.records, rec)
}

// Records returns a copy of the entries recorded so far.
func (t *PipelineTrace) Records() []StageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageRecord, len(t.records))
	copy(out, t.records)
	return out
}

func (t *PipelineTrace) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"request_id": t.requestID,
		"stages":     t.Records(),
	})
}

// FileTraceSink buffers records and writes them as one JSON document on Flush.
type FileTraceSink struct {
	mu      sync.Mutex
	records []StageRecord
	writer  io.Writer
}

func NewFileTraceSink(writer io.Writer) *FileTraceSink {
	return &FileTraceSink{
		records: make([]StageRecord, 0),
		writer:  writer,
	}
}

// Record buffers the record (does not flush immediately)
func (s *FileTraceSink) Record(_ context.Context, rec StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Flush writes all accumulated records to the writer
func (s *FileTraceSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"pipeline_session": map[string]any{
			"timestamp": time.Now(),
			"stages":    s.records,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline trace: %w", err)
	}

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write pipeline trace: %w", err)
	}

	s.records = s.records[:0]
	return nil
}

type NoOpTraceSink struct{}

func NewNoOpTraceSink() *NoOpTraceSink {
	return &NoOpTraceSink{}
}

func (NoOpTraceSink) Record(context.Context, StageRecord) error {
	return nil
}

// StdoutTraceSink writes each record as a JSON line to stdout (for Lambda/CloudWatch)
type StdoutTraceSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewStdoutTraceSink() *StdoutTraceSink {
	return &StdoutTraceSink{out: os.Stdout}
}

func (s *StdoutTraceSink) Record(_ context.Context, rec StageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.out, string(data))
	return err
}

// MultiTraceSink fans a record out to every sink and joins their errors.
type MultiTraceSink []TraceSink

func (m MultiTraceSink) Record(ctx context.Context, rec StageRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		errs = append(errs, s.Record(ctx, rec))
	}
	return errors.Join(errs...)
}

type queuedRecord struct {
	ctx context.Context
	rec StageRecord
}

// AsyncTraceSink hands records to a background writer so a slow sink never
// adds to request latency. Record does not block: when the buffer is full the
// record is dropped and ErrTraceDropped returned.
type AsyncTraceSink struct {
	next    TraceSink
	queue   chan queuedRecord
	done    chan struct{}
	dropped atomic.Int64

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
}

func NewAsyncTraceSink(next TraceSink, buffer int) *AsyncTraceSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncTraceSink{
		next:  next,
		queue: make(chan queuedRecord, buffer),
		done:  make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *AsyncTraceSink) loop() {
	defer close(s.done)
	for q := range s.queue {
		if err := s.next.Record(q.ctx, q.rec); err != nil {
			slog.Warn("TRACE: Sink failed", "stage", q.rec.Stage, "error", err)
		}
		s.mu.Lock()
		s.pending--
		if s.pending == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

func (s *AsyncTraceSink) Record(ctx context.Context, rec StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("trace sink closed")
	}
	select {
	case s.queue <- queuedRecord{ctx: context.WithoutCancel(ctx), rec: rec}:
		s.pending++
		return nil
	default:
		s.dropped.Add(1)
		return ErrTraceDropped
	}
}

// Drain waits until every accepted record has reached the wrapped sink.
func (s *AsyncTraceSink) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

// Close stops accepting records and waits for the queue to empty.
func (s *AsyncTraceSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
	return nil
}

// Dropped is the number of records lost to a full buffer.
func (s *AsyncTraceSink) Dropped() int64 {
	return s.dropped.Load()
}
