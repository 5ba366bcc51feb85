// Package claimlog records which byte ranges of a segment an owner held and
// when, and replays the records of many owners to find two owners holding
// the same bytes at the same time.
//
// A claim's interval is taken conservatively: Acquire is called after the
// allocator hands the range out and Release before it is given back, so the
// recorded interval lies inside the real ownership. Any overlap found by
// Check is therefore a real double ownership, never a timing artifact.
//
// Timestamps come from a clock shared by every process on the host, so logs
// written by different processes can be merged.
package claimlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
)

// Open is the Released time of a claim still held when its log was closed.
const Open = math.MaxInt64

// ErrUnknownClaim indicates Release of a range that was never acquired.
var ErrUnknownClaim = errors.New("claimlog: release of unknown claim")

// Claim is one held range [Start, End) of segment offsets.
type Claim struct {
	Owner    int    `json:"owner"`
	Start    uint64 `json:"start"`
	End      uint64 `json:"end"`
	Acquired int64  `json:"acquired"`
	Released int64  `json:"released"`
}

// Held reports whether the claim was still open at the end of its log.
func (c Claim) Held() bool { return c.Released == Open }

// Log writes the claims of one owner as JSON lines.
//
// NOT thread-safe. Each owner keeps its own Log.
type Log struct {
	owner int
	w     *bufio.Writer
	enc   *json.Encoder
	open  map[uint64]Claim
}

// New returns a Log for owner writing to w.
func New(w io.Writer, owner int) *Log {
	bw := bufio.NewWriter(w)
	return &Log{
		owner: owner,
		w:     bw,
		enc:   json.NewEncoder(bw),
		open:  make(map[uint64]Claim),
	}
}

// Acquire opens a claim on [start, end). Call it after the range was handed
// out.
func (l *Log) Acquire(start, end uint64) {
	l.open[start] = Claim{Owner: l.owner, Start: start, End: end, Acquired: Now()}
}

// Release closes the claim starting at start and writes it. Call it before
// the range is given back.
func (l *Log) Release(start uint64) error {
	c, ok := l.open[start]
	if !ok {
		return fmt.Errorf("%w: owner %d offset 0x%X", ErrUnknownClaim, l.owner, start)
	}
	delete(l.open, start)
	c.Released = Now()
	return l.enc.Encode(c)
}

// Close writes the claims still open as held and flushes the log.
func (l *Log) Close() error {
	starts := make([]uint64, 0, len(l.open))
	for s := range l.open {
		starts = append(starts, s)
	}
	slices.Sort(starts)
	for _, s := range starts {
		c := l.open[s]
		c.Released = Open
		if err := l.enc.Encode(c); err != nil {
			return err
		}
	}
	clear(l.open)
	return l.w.Flush()
}

// Read decodes every claim in r.
func Read(r io.Reader) ([]Claim, error) {
	var claims []Claim
	dec := json.NewDecoder(r)
	for {
		var c Claim
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			return claims, nil
		}
		if err != nil {
			return claims, fmt.Errorf("claimlog: decode claim %d: %w", len(claims), err)
		}
		claims = append(claims, c)
	}
}

// OverlapError describes two claims that held the same bytes at once.
type OverlapError struct {
	Held, Claimed Claim
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("claimlog: owner %d claimed [0x%X, 0x%X) at %d while owner %d held [0x%X, 0x%X) since %d",
		e.Claimed.Owner, e.Claimed.Start, e.Claimed.End, e.Claimed.Acquired,
		e.Held.Owner, e.Held.Start, e.Held.End, e.Held.Acquired)
}

// event is one end of a claim during replay.
type event struct {
	at      int64
	release bool
	claim   int
}

// Check replays claims in time order and returns an *OverlapError for the
// first claim that overlaps a range held by another claim. Releases at the
// same instant as a claim are applied first.
func Check(claims []Claim) error {
	events := make([]event, 0, 2*len(claims))
	for i, c := range claims {
		events = append(events, event{at: c.Acquired, claim: i})
		if !c.Held() {
			events = append(events, event{at: c.Released, release: true, claim: i})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].release && !events[j].release
	})

	// live holds indexes into claims, sorted by Start and pairwise disjoint.
	var live []int
	for _, ev := range events {
		c := claims[ev.claim]
		pos := sort.Search(len(live), func(i int) bool {
			return claims[live[i]].Start >= c.Start
		})

		if ev.release {
			for k := pos; k < len(live) && claims[live[k]].Start == c.Start; k++ {
				if live[k] == ev.claim {
					live = slices.Delete(live, k, k+1)
					break
				}
			}
			continue
		}

		if pos > 0 && claims[live[pos-1]].End > c.Start {
			return &OverlapError{Held: claims[live[pos-1]], Claimed: c}
		}
		if pos < len(live) && claims[live[pos]].Start < c.End {
			return &OverlapError{Held: claims[live[pos]], Claimed: c}
		}
		live = slices.Insert(live, pos, ev.claim)
	}
	return nil
}
