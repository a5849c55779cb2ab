package usecase

import "sync/atomic"

// Progress carries the run counters shared between the pipeline and the
// status endpoint. All methods are safe for concurrent use and tolerate a
// nil receiver so optional wiring stays optional.
type Progress struct {
	state     atomic.Value
	players   atomic.Int64
	matchIDs  atomic.Int64
	attempted atomic.Int64
	noData    atomic.Int64
	batches   atomic.Int64
}

// ProgressSnapshot is the JSON shape served by the status endpoint.
type ProgressSnapshot struct {
	State           string `json:"state"`
	Players         int64  `json:"players"`
	MatchIDs        int64  `json:"match_ids"`
	Attempted       int64  `json:"attempted"`
	NoData          int64  `json:"no_data"`
	UploadedBatches int64  `json:"uploaded_batches"`
}

func NewProgress() *Progress {
	p := &Progress{}
	p.state.Store("")
	return p
}

func (p *Progress) SetState(state string) {
	if p == nil {
		return
	}
	p.state.Store(state)
}

func (p *Progress) AddPlayers(n int64) {
	if p == nil {
		return
	}
	p.players.Add(n)
}

func (p *Progress) AddMatchIDs(n int64) {
	if p == nil {
		return
	}
	p.matchIDs.Add(n)
}

func (p *Progress) IncrAttempted() {
	if p == nil {
		return
	}
	p.attempted.Add(1)
}

func (p *Progress) IncrNoData() {
	if p == nil {
		return
	}
	p.noData.Add(1)
}

func (p *Progress) IncrUploadedBatch() {
	if p == nil {
		return
	}
	p.batches.Add(1)
}

func (p *Progress) Snapshot() ProgressSnapshot {
	if p == nil {
		return ProgressSnapshot{}
	}
	state, _ := p.state.Load().(string)
	return ProgressSnapshot{
		State:           state,
		Players:         p.players.Load(),
		MatchIDs:        p.matchIDs.Load(),
		Attempted:       p.attempted.Load(),
		NoData:          p.noData.Load(),
		UploadedBatches: p.batches.Load(),
	}
}
