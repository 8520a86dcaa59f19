package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/cursor"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/sru"
)

// Record outcomes reported to the Observer.
const (
	OutcomeDocument  = "document"
	OutcomeMalformed = "malformed"
	OutcomeSurrogate = "surrogate"
)

// Source fetches pages of raw records. An empty page ends the stream.
type Source interface {
	FetchPage(ctx context.Context, offset, pageSize int) ([]sru.RawRecord, error)
}

// Extractor turns a raw record into a document.
type Extractor interface {
	Extract(raw sru.RawRecord) (*shard.Document, error)
}

// Publisher uploads shards and tracks them in the manifest.
type Publisher interface {
	Track(s *shard.Shard) (shard.Record, error)
	Publish(ctx context.Context, s *shard.Shard) (shard.Record, error)
	PublishPending(ctx context.Context) ([]shard.Record, error)
}

// Observer receives progress, e.g. for metrics.
type Observer interface {
	RecordRecord(outcome string)
	RecordShardFlushed(documents int)
	SetCursor(offset int)
	SetState(state string)
}

// Deps are the collaborators of a Driver.
type Deps struct {
	Source    Source
	Extractor Extractor
	Cursor    cursor.Store
	Writer    *shard.Writer
	Publisher Publisher
	Observer  Observer
	Logger    logger.Interface
}

// Driver runs the harvest state machine. A Driver runs once.
type Driver struct {
	cfg  Config
	deps Deps
	log  logger.Interface

	mu       sync.Mutex
	snapshot Snapshot
	saved    int
}

// New creates a Driver.
func New(cfg Config, deps Deps) (*Driver, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Extractor == nil || deps.Cursor == nil || deps.Writer == nil || deps.Publisher == nil {
		return nil, errors.New("pipeline: source, extractor, cursor, writer and publisher are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOp()
	}

	runID := uuid.NewString()
	d := &Driver{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.WithComponent("pipeline").WithRun(runID),
	}
	d.snapshot.RunID = runID
	d.snapshot.State = StateIdle
	return d, nil
}

// RunID identifies this run in logs and status.
func (d *Driver) RunID() string {
	return d.snapshot.RunID
}

// Snapshot returns the current state and counters.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.snapshot
}

// Run harvests until the source is exhausted (DONE), ctx is cancelled or the
// page limit is reached (STOPPED), or a fatal error occurs (FAILED).
// Cancellation is observed between pages; calls in flight complete under
// their own timeouts so the persisted cursor stays consistent.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	callCtx := context.WithoutCancel(ctx)

	d.update(func(s *Snapshot) { s.StartedAt = time.Now().UTC() })

	d.setState(StateResume)
	start, err := d.deps.Cursor.Load(callCtx)
	if err != nil {
		return d.fail(fmt.Errorf("load cursor: %w", err))
	}
	d.mu.Lock()
	d.saved = start
	d.snapshot.Cursor = start
	d.snapshot.FetchOffset = start
	d.mu.Unlock()
	d.observeCursor(start)

	d.log.Info("Resuming harvest",
		"start_record", start,
		"page_size", d.cfg.PageSize,
		"shard_size", d.cfg.ShardSize,
		"publish_mode", d.cfg.PublishMode)

	if d.cfg.PublishMode == PublishPerShard {
		if err = d.publishPending(callCtx); err != nil {
			return d.fail(err)
		}
	}

	offset := start
	for {
		if ctx.Err() != nil {
			return d.stop("interrupted")
		}
		if d.cfg.MaxPages > 0 && d.Snapshot().Pages >= d.cfg.MaxPages {
			return d.stop("page limit reached")
		}

		d.setState(StateFetching)
		records, fetchErr := d.deps.Source.FetchPage(callCtx, offset, d.cfg.PageSize)
		if fetchErr != nil {
			return d.fail(fmt.Errorf("fetch at %d: %w", offset, fetchErr))
		}
		d.update(func(s *Snapshot) { s.Pages++ })

		if len(records) == 0 {
			d.log.Info("No more records", "start_record", offset)
			return d.drain(callCtx, offset)
		}

		if err = d.consume(callCtx, records); err != nil {
			return d.fail(err)
		}

		d.setState(StateAdvancing)
		offset += len(records)
		d.update(func(s *Snapshot) { s.FetchOffset = offset })
		if err = d.checkpoint(callCtx, offset); err != nil {
			return d.fail(err)
		}

		d.log.Info("Page processed",
			"records", len(records),
			"next_record", offset,
			"cursor", d.Snapshot().Cursor)

		if !d.wait(ctx) {
			return d.stop("interrupted")
		}
	}
}

// consume extracts one page into the writer, flushing full shards.
func (d *Driver) consume(ctx context.Context, records []sru.RawRecord) error {
	d.setState(StateExtracting)

	for _, raw := range records {
		doc, err := d.deps.Extractor.Extract(raw)
		if err != nil {
			d.drop(raw, err)
			d.deps.Writer.Skip(raw.Position)
			continue
		}

		d.setState(StateAccumulating)
		d.deps.Writer.Append(*doc, raw.Position)
		buffered := d.deps.Writer.Len()
		d.update(func(s *Snapshot) {
			s.Records++
			s.Documents++
			s.Buffered = buffered
		})
		d.observeRecord(OutcomeDocument)

		if d.deps.Writer.IsFull() {
			if err = d.flush(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *Driver) drop(raw sru.RawRecord, err error) {
	outcome := OutcomeMalformed
	if errors.Is(err, sru.ErrSurrogateDiagnostic) {
		outcome = OutcomeSurrogate
	}

	d.update(func(s *Snapshot) {
		s.Records++
		s.Dropped++
	})
	d.observeRecord(outcome)
	d.log.Warn("Dropping record",
		"position", raw.Position,
		"reason", outcome,
		"error", err)
}

// flush writes the open batch, then publishes or tracks it.
func (d *Driver) flush(ctx context.Context) error {
	d.setState(StateFlushing)

	s, err := d.deps.Writer.Flush()
	if err != nil {
		return fmt.Errorf("flush shard: %w", err)
	}
	if s == nil {
		return nil
	}

	d.update(func(snap *Snapshot) {
		snap.Shards++
		snap.Buffered = 0
	})
	if d.deps.Observer != nil {
		d.deps.Observer.RecordShardFlushed(s.Count)
	}
	d.log.Info("Shard written",
		"shard", s.Name,
		"documents", s.Count,
		"bytes", s.Size)

	if d.cfg.PublishMode == PublishAtEnd {
		if _, err = d.deps.Publisher.Track(s); err != nil {
			return err
		}
		return nil
	}

	d.setState(StatePublishing)
	if _, err = d.deps.Publisher.Publish(ctx, s); err != nil {
		return err
	}
	d.update(func(snap *Snapshot) { snap.Published++ })
	return nil
}

func (d *Driver) publishPending(ctx context.Context) error {
	published, err := d.deps.Publisher.PublishPending(ctx)
	d.update(func(s *Snapshot) { s.Published += len(published) })
	if err != nil {
		return fmt.Errorf("publish pending shards: %w", err)
	}
	if len(published) > 0 {
		d.log.Info("Published pending shards", "count", len(published))
	}
	return nil
}

// checkpoint persists the first position not yet stored in a shard file: the
// start of the open batch, or offset when nothing is buffered.
func (d *Driver) checkpoint(ctx context.Context, offset int) error {
	value := offset
	if pending, ok := d.deps.Writer.Pending(); ok {
		value = pending
	}

	d.mu.Lock()
	unchanged := value == d.saved
	d.mu.Unlock()
	if unchanged {
		return nil
	}

	if err := d.deps.Cursor.Save(ctx, value); err != nil {
		return fmt.Errorf("save cursor %d: %w", value, err)
	}

	d.mu.Lock()
	d.saved = value
	d.snapshot.Cursor = value
	d.snapshot.UpdatedAt = time.Now().UTC()
	d.mu.Unlock()
	d.observeCursor(value)

	return nil
}

// drain flushes the partial shard, publishes what is outstanding and persists
// the final cursor.
func (d *Driver) drain(ctx context.Context, offset int) (*Result, error) {
	d.setState(StateDraining)

	if err := d.flush(ctx); err != nil {
		return d.fail(err)
	}
	if d.cfg.PublishMode == PublishAtEnd {
		if err := d.publishPending(ctx); err != nil {
			return d.fail(err)
		}
	}
	if err := d.checkpoint(ctx, offset); err != nil {
		return d.fail(err)
	}

	d.setState(StateDone)
	res := d.result()
	d.log.Info("Harvest complete",
		"cursor", res.Cursor,
		"documents", res.Documents,
		"dropped", res.Dropped,
		"shards", res.Shards,
		"published", res.Published)
	return res, nil
}

// wait sleeps for the page delay. It returns false when ctx is cancelled.
func (d *Driver) wait(ctx context.Context) bool {
	if d.cfg.PageDelay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d.cfg.PageDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Driver) stop(reason string) (*Result, error) {
	d.setState(StateStopped)
	res := d.result()
	d.log.Info("Harvest stopped",
		"reason", reason,
		"cursor", res.Cursor,
		"discarded_documents", d.deps.Writer.Len())
	return res, nil
}

func (d *Driver) fail(err error) (*Result, error) {
	d.update(func(s *Snapshot) { s.LastError = err.Error() })
	d.setState(StateFailed)
	res := d.result()
	d.log.Error("Harvest failed", "cursor", res.Cursor, "error", err)
	return res, err
}

func (d *Driver) result() *Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := d.snapshot.Result
	return &res
}

func (d *Driver) setState(state State) {
	d.mu.Lock()
	changed := d.snapshot.State != state
	d.snapshot.State = state
	d.snapshot.UpdatedAt = time.Now().UTC()
	d.mu.Unlock()

	if changed {
		d.log.Debug("State changed", "state", string(state))
		if d.deps.Observer != nil {
			d.deps.Observer.SetState(string(state))
		}
	}
}

func (d *Driver) update(fn func(s *Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.snapshot)
}

func (d *Driver) observeRecord(outcome string) {
	if d.deps.Observer != nil {
		d.deps.Observer.RecordRecord(outcome)
	}
}

func (d *Driver) observeCursor(offset int) {
	if d.deps.Observer != nil {
		d.deps.Observer.SetCursor(offset)
	}
}
