// Package syncpipeline implements the sync handle state machine, its
// queue, and the progress/control channel a caller uses to watch or
// cancel an in-flight sync — the orchestration layer that sits on top
// of the git file source, caches, and index writers.
package syncpipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ferg-cod3s/conexus/internal/repo"
)

// gitReportDelay is how long a fetch must run before we start
// emitting progress events for it. Most fetches on an already-synced
// repo finish in well under this window; reporting progress for them
// would just be UI noise for no benefit.
const gitReportDelay = 3 * time.Second

// ControlEventKind is the kind of out-of-band request a caller can
// make against an in-flight sync.
type ControlEventKind int

const (
	ControlNone ControlEventKind = iota
	ControlCancel
	ControlRemove
)

// Progress is one update emitted on a SyncPipes' channel: either a
// plain status change or a git-fetch percentage.
type Progress struct {
	Ref          repo.RepoRef
	Status       repo.SyncStatus
	GitPercent   int
	HasGitPercent bool
}

// SyncPipes is the per-sync control/progress object a SyncHandle holds
// for its lifetime: callers read Progress() to watch it and call
// Cancel()/Remove() to interrupt it.
type SyncPipes struct {
	ref      repo.RepoRef
	progress chan Progress

	eventMu sync.Mutex
	event   ControlEventKind

	gitInterrupt atomic.Bool
}

func NewSyncPipes(ref repo.RepoRef) *SyncPipes {
	return &SyncPipes{
		ref:      ref,
		progress: make(chan Progress, 64),
	}
}

// Progress returns the read side of the progress channel.
func (p *SyncPipes) Progress() <-chan Progress {
	return p.progress
}

func (p *SyncPipes) emit(pr Progress) {
	select {
	case p.progress <- pr:
	default:
		// A slow or absent consumer must never block the sync itself.
	}
}

// SetStatus reports a plain status transition.
func (p *SyncPipes) SetStatus(s repo.SyncStatus) {
	p.emit(Progress{Ref: p.ref, Status: s})
}

// Cancel requests that the in-flight sync stop at its next checkpoint.
func (p *SyncPipes) Cancel() {
	p.eventMu.Lock()
	p.event = ControlCancel
	p.eventMu.Unlock()
	p.gitInterrupt.Store(true)
}

// Remove requests that the in-flight sync stop and the repo be torn
// down entirely once it does.
func (p *SyncPipes) Remove() {
	p.eventMu.Lock()
	p.event = ControlRemove
	p.eventMu.Unlock()
	p.gitInterrupt.Store(true)
}

func (p *SyncPipes) IsCancelled() bool {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	return p.event == ControlCancel
}

func (p *SyncPipes) IsRemoved() bool {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()
	return p.event == ControlRemove
}

func (p *SyncPipes) IsInterrupted() bool {
	return p.gitInterrupt.Load()
}

// GitSync adapts go-git's progress sideband (an io.Writer fed
// pack-protocol status lines) into percentage events on the owning
// SyncPipes, gated by gitReportDelay so a fast, already-synced fetch
// never emits progress at all. A percentage is emitted only once
// SetTotal has recorded a positive total; Write never sets one, so a
// GitSync fed only through Write emits no progress events.
type GitSync struct {
	pipes   *SyncPipes
	created time.Time
	cnt     int64
	max     int64
}

func NewGitSync(pipes *SyncPipes) *GitSync {
	return &GitSync{pipes: pipes, created: time.Now()}
}

// SetTotal records the expected object count for a phase (go-git
// reports this via its sideband "Counting objects: N" style lines;
// nothing in this package parses that text or calls SetTotal).
func (g *GitSync) SetTotal(max int64) {
	g.max = max
}

// Advance records n additional objects processed and, once past the
// warmup delay, emits a clamped percentage.
func (g *GitSync) Advance(n int64) {
	g.cnt += n
	if time.Since(g.created) <= gitReportDelay {
		return
	}
	if g.max <= 0 {
		return
	}
	pct := int(g.cnt * 100 / g.max)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	g.pipes.emit(Progress{Ref: g.pipes.ref, GitPercent: pct, HasGitPercent: true})
}

// Write implements io.Writer so *GitSync can be passed directly as
// go-git's transport.Progress sideband sink; it does not attempt to
// parse the pack-protocol text, it just treats each write as forward
// motion of unknown magnitude (go-git does not expose parsed
// counters through its public Progress writer interface).
func (g *GitSync) Write(p []byte) (int, error) {
	g.Advance(1)
	return len(p), nil
}
