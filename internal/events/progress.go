package events

import (
	"context"
	"sync"
	"time"
)

// Progress is hierarchical progress reporting with cooperative cancellation.
// The scheduler polls IsCanceled between tasks; nothing enforces it.
type Progress interface {
	BeginTask(name string, totalUnits int)
	Worked(n int)
	// AddTotal extends the range by units discovered after BeginTask.
	AddTotal(units int)
	// SubProgress returns a child whose whole range maps onto units of this one.
	SubProgress(units int) Progress
	Done()
	IsCanceled() bool
}

// NullProgress ignores all reports and is never canceled.
type NullProgress struct{}

func (NullProgress) BeginTask(string, int)    {}
func (NullProgress) Worked(int)               {}
func (NullProgress) AddTotal(int)             {}
func (NullProgress) SubProgress(int) Progress { return NullProgress{} }
func (NullProgress) Done()                    {}
func (NullProgress) IsCanceled() bool         { return false }

// BusProgress publishes BuildProgressEvents on an event bus and reports
// cancellation once its context is done.
type BusProgress struct {
	mu  sync.Mutex
	bus *EventBus
	ctx context.Context

	parent      *BusProgress
	parentUnits int // Units of the parent this progress stands for
	forwarded   int // Units already forwarded to the parent

	name   string
	total  int
	worked int
}

// NewBusProgress creates root progress publishing on bus.
func NewBusProgress(ctx context.Context, bus *EventBus) *BusProgress {
	return &BusProgress{bus: bus, ctx: ctx}
}

func (p *BusProgress) BeginTask(name string, totalUnits int) {
	p.mu.Lock()
	p.name = name
	p.total = max(totalUnits, 0)
	p.worked = 0
	p.mu.Unlock()
	p.report()
}

func (p *BusProgress) Worked(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	p.worked = min(p.worked+n, p.total)
	p.mu.Unlock()
	p.report()
}

func (p *BusProgress) AddTotal(units int) {
	if units <= 0 {
		return
	}
	p.mu.Lock()
	p.total += units
	p.mu.Unlock()
	p.report()
}

func (p *BusProgress) SubProgress(units int) Progress {
	return &BusProgress{bus: p.bus, ctx: p.ctx, parent: p, parentUnits: units}
}

func (p *BusProgress) Done() {
	p.mu.Lock()
	p.worked = p.total
	var remaining int
	if p.parent != nil {
		remaining = p.parentUnits - p.forwarded
		p.forwarded = p.parentUnits
	}
	parent := p.parent
	p.mu.Unlock()

	if parent != nil {
		parent.Worked(remaining)
		return
	}
	p.report()
}

func (p *BusProgress) IsCanceled() bool {
	return p.ctx != nil && p.ctx.Err() != nil
}

// Snapshot returns the current name, worked and total units.
func (p *BusProgress) Snapshot() (name string, worked, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name, p.worked, p.total
}

// report forwards a child's share to its parent, or publishes at the root.
func (p *BusProgress) report() {
	p.mu.Lock()
	if p.parent != nil {
		var share int
		if p.total > 0 {
			want := p.parentUnits * p.worked / p.total
			share = want - p.forwarded
			p.forwarded = want
		}
		parent := p.parent
		p.mu.Unlock()
		parent.Worked(share)
		return
	}
	event := BuildProgressEvent{Name: p.name, Total: p.total, Worked: p.worked, Timestamp: time.Now()}
	p.mu.Unlock()

	p.bus.Emit(event)
}
