// ABOUTME: Shared in-memory cache of registry studies and per-study statistics
// ABOUTME: Bounded concurrent refresh with partial-success and stale-response handling

package studycache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/submission"
)

// DefaultConcurrency bounds per-study fetches when none is configured.
const DefaultConcurrency = 4

// MaxStudies caps how many ids a single refresh will fetch.
const MaxStudies = 1 << 16

// Reader is the read side of the ledger client.
type Reader interface {
	StudyCounter(ctx context.Context) (uint64, error)
	GetStudy(ctx context.Context, id uint64) (*ledger.Study, error)
	GetStudyStats(ctx context.Context, id uint64) (*ledger.StudyStats, error)
}

// Report summarizes a successful refresh.
type Report struct {
	Count   uint64
	Loaded  int
	Partial *FetchPartialFailure // nil when every study loaded
	At      time.Time
}

// Stats is the decoded aggregate record for one study.
type Stats struct {
	TotalRecords uint64
	EncryptedSum common.Hash
	MinValue     decimal.Decimal
	MaxValue     decimal.Decimal
	LastUpdated  time.Time
}

// StatsState distinguishes "never loaded" from "failed to load".
type StatsState int

const (
	StatsAbsent StatsState = iota
	StatsLoaded
	StatsFailed
)

func (s StatsState) String() string {
	switch s {
	case StatsLoaded:
		return "loaded"
	case StatsFailed:
		return "failed"
	default:
		return "absent"
	}
}

// StatsView is what readers see for a study's statistics.
type StatsView struct {
	State StatsState
	Stats *Stats // set only when State is StatsLoaded
	Err   error  // set only when State is StatsFailed
}

// Options configures a Cache.
type Options struct {
	Concurrency int
	Logger      *slog.Logger
}

// Cache is safe for concurrent use.
type Cache struct {
	reader      Reader
	concurrency int
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.RWMutex
	sorted      []ledger.Study // CreatedAt desc, ID desc
	byID        map[uint64]ledger.Study
	refreshedAt time.Time
	listIssued  uint64
	listApplied uint64

	stats        map[uint64]StatsView
	statsIssued  map[uint64]uint64
	statsApplied map[uint64]uint64
}

// New creates an empty cache reading from r.
func New(r Reader, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Cache{
		reader:       r,
		concurrency:  concurrency,
		logger:       logger.With("component", "studycache"),
		now:          time.Now,
		byID:         make(map[uint64]ledger.Study),
		stats:        make(map[uint64]StatsView),
		statsIssued:  make(map[uint64]uint64),
		statsApplied: make(map[uint64]uint64),
	}
}

// RefreshAll reloads every study. Per-study failures are logged and
// reported in Report.Partial; a failed count read or a cancelled ctx returns
// *FetchTotalFailure and leaves the cached list untouched. When refreshes
// overlap, the most recently started one that completes wins.
func (c *Cache) RefreshAll(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	c.listIssued++
	seq := c.listIssued
	c.mu.Unlock()

	count, err := c.reader.StudyCounter(ctx)
	if err != nil {
		c.logger.Warn("study count fetch failed; keeping previous list", "error", err)
		return nil, &FetchTotalFailure{Err: err}
	}
	if count > MaxStudies {
		err := fmt.Errorf("registry reports %d studies, more than the %d supported", count, MaxStudies)
		c.logger.Warn("study refresh aborted", "error", err)
		return nil, &FetchTotalFailure{Err: err}
	}

	results := make([]*ledger.Study, count)
	var failMu sync.Mutex
	failed := make(map[uint64]error)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for id := uint64(0); id < count; id++ {
		g.Go(func() error {
			st, err := c.reader.GetStudy(ctx, id)
			if err != nil {
				failMu.Lock()
				failed[id] = err
				failMu.Unlock()
				c.logger.Warn("study fetch failed", "study_id", id, "error", err)
				return nil
			}
			results[id] = st
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &FetchTotalFailure{Err: err}
	}

	studies := make([]ledger.Study, 0, count)
	for _, st := range results {
		if st != nil {
			studies = append(studies, *st)
		}
	}
	sortNewestFirst(studies)

	at := c.now()
	c.mu.Lock()
	if seq > c.listApplied {
		c.listApplied = seq
		c.sorted = studies
		c.byID = make(map[uint64]ledger.Study, len(studies))
		for _, st := range studies {
			c.byID[st.ID] = st
		}
		c.refreshedAt = at
	}
	c.mu.Unlock()

	report := &Report{Count: count, Loaded: len(studies), At: at}
	if len(failed) > 0 {
		report.Partial = &FetchPartialFailure{Count: count, Failed: failed}
	}
	c.logger.Debug("studies refreshed", "count", count, "loaded", len(studies), "failed", len(failed))
	return report, nil
}

func sortNewestFirst(studies []ledger.Study) {
	sort.SliceStable(studies, func(i, j int) bool {
		a, b := studies[i], studies[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// All returns every cached study, newest first with ties broken by id descending.
func (c *Cache) All() []ledger.Study {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ledger.Study, len(c.sorted))
	copy(out, c.sorted)
	return out
}

// Active returns the active studies in id order.
func (c *Cache) Active() []ledger.Study {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ledger.Study
	for _, st := range c.sorted {
		if st.IsActive {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Study returns one cached study.
func (c *Cache) Study(id uint64) (ledger.Study, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.byID[id]
	return st, ok
}

// RefreshedAt returns when the list was last replaced; zero if never.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// RefreshStats loads the statistics for one study and returns the resulting
// view. Failures become StatsFailed; they are never returned as errors. A
// response is dropped if a later request for the same id already completed.
func (c *Cache) RefreshStats(ctx context.Context, id uint64) StatsView {
	c.mu.Lock()
	c.statsIssued[id]++
	seq := c.statsIssued[id]
	c.mu.Unlock()

	raw, err := c.reader.GetStudyStats(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.statsApplied[id] {
		c.logger.Debug("dropping stale stats response", "study_id", id)
		return c.statsViewLocked(id)
	}
	c.statsApplied[id] = seq

	if err != nil {
		c.logger.Warn("stats fetch failed", "study_id", id, "error", err)
		c.stats[id] = StatsView{State: StatsFailed, Err: err}
		return c.stats[id]
	}

	c.stats[id] = StatsView{State: StatsLoaded, Stats: decodeStats(raw)}
	return c.stats[id]
}

// Stats returns the cached statistics view for a study.
func (c *Cache) Stats(id uint64) StatsView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statsViewLocked(id)
}

func (c *Cache) statsViewLocked(id uint64) StatsView {
	v, ok := c.stats[id]
	if !ok {
		return StatsView{State: StatsAbsent}
	}
	return v
}

func decodeStats(raw *ledger.StudyStats) *Stats {
	return &Stats{
		TotalRecords: raw.TotalRecords,
		EncryptedSum: raw.EncryptedSum,
		MinValue:     submission.Unscale(raw.MinValue),
		MaxValue:     submission.Unscale(raw.MaxValue),
		LastUpdated:  raw.LastUpdated,
	}
}
