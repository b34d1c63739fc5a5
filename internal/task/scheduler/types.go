package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"fooddates/internal/eventbus"
	"fooddates/internal/task/engine"
	logx "fooddates/pkg/logx"

	"github.com/robfig/cron/v3"
)

// ErrInvalidRequest is returned for malformed registrations.
var ErrInvalidRequest = errors.New("scheduler: invalid request")

// Config controls the trigger service. Execution settings live in the
// task engine config.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
}

type OverlapPolicy = engine.OverlapPolicy

type TaskOptions = engine.TaskOptions

type HistoryItem = engine.HistoryItem

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

type defKind int

const (
	kindCron defKind = iota
	kindInterval
	kindPeriodic
)

func (k defKind) String() string {
	switch k {
	case kindInterval:
		return "interval"
	case kindPeriodic:
		return "periodic"
	default:
		return "cron"
	}
}

type scheduleDef struct {
	id      string
	name    string
	kind    defKind
	spec    string // cron spec, "@every <d>" or a periodic description
	every   time.Duration
	first   time.Time // periodic only
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	opt     TaskOptions
	state   *engine.RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus
	now func() time.Time

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
	seq    uint64

	// keyed by schedule name
	enqMu       sync.Mutex
	enqFailures map[string]*enqueueFailures
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Kind    string
	Spec    string
	Period  time.Duration
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Timezone string

	// task engine
	Workers  int
	InFlight int
	QueueLen int
	QueueCap int
	Dropped  uint64
	RetryMax int

	Schedules []ScheduleInfo
	History   []HistoryItem
}
