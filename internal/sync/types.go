package sync

import (
	"fmt"
	"strings"
	"time"
)

// simulatedPrefix is the reserved prefix placeholder ids render with in
// logs. It exists for log readability only: code distinguishes real and
// simulated ids by the ItemID tag, never by probing the string.
const simulatedPrefix = "dry-run:"

// ItemID identifies a remote item. Real ids are opaque strings issued
// by the store. Simulated ids are minted by the dry-run layer from the
// item's name and must never reach the real client.
type ItemID struct {
	value     string
	simulated bool
}

// RealID wraps an id returned by the store.
func RealID(id string) ItemID {
	return ItemID{value: id}
}

// SimulatedID derives a deterministic placeholder id from an item name,
// so repeated dry runs over the same tree produce the same ids.
func SimulatedID(name string) ItemID {
	return ItemID{value: strings.ReplaceAll(name, " ", "_"), simulated: true}
}

// IsZero reports whether the id is unset.
func (id ItemID) IsZero() bool {
	return id.value == "" && !id.simulated
}

// Simulated reports whether the id is a dry-run placeholder.
func (id ItemID) Simulated() bool {
	return id.simulated
}

// Value returns the raw store id. Only meaningful for real ids.
func (id ItemID) Value() string {
	return id.value
}

// String renders the id for logging.
func (id ItemID) String() string {
	if id.simulated {
		return simulatedPrefix + id.value
	}
	return id.value
}

// LocalEntry is one file or directory observed in the local tree.
// Re-derived on every walk; never cached across runs.
type LocalEntry struct {
	Name    string
	Path    string // absolute
	IsDir   bool
	ModTime time.Time // zero when stat failed
	Size    int64     // -1 when stat failed
}

// HasModTime reports whether the entry's modification time is known.
func (e LocalEntry) HasModTime() bool {
	return !e.ModTime.IsZero()
}

// Direction selects which side(s) of the sync to run.
type Direction int

const (
	DirectionPush Direction = iota // local -> remote
	DirectionPull                  // remote -> local
	DirectionBoth                  // push, then pull
)

// ParseDirection parses a direction config string.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "push":
		return DirectionPush, nil
	case "pull":
		return DirectionPull, nil
	case "both":
		return DirectionBoth, nil
	default:
		return 0, fmt.Errorf("invalid direction %q", s)
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionPush:
		return "push"
	case DirectionPull:
		return "pull"
	case DirectionBoth:
		return "both"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ConflictPolicy decides which side wins when an item exists on both.
type ConflictPolicy int

const (
	NewerWins ConflictPolicy = iota
	LocalWins
	RemoteWins
	SkipAlways
)

// ParsePolicy parses a conflict policy config string.
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "newer-wins":
		return NewerWins, nil
	case "local-wins":
		return LocalWins, nil
	case "remote-wins":
		return RemoteWins, nil
	case "skip":
		return SkipAlways, nil
	default:
		return 0, fmt.Errorf("invalid conflict policy %q", s)
	}
}

func (p ConflictPolicy) String() string {
	switch p {
	case NewerWins:
		return "newer-wins"
	case LocalWins:
		return "local-wins"
	case RemoteWins:
		return "remote-wins"
	case SkipAlways:
		return "skip"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Action is what the engine should do for one item.
type Action int

const (
	ActionSkip Action = iota
	ActionCreateFolder
	ActionCreateFile
	ActionUpdateFile
	ActionConflict
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionCreateFolder:
		return "create-folder"
	case ActionCreateFile:
		return "create-file"
	case ActionUpdateFile:
		return "update-file"
	case ActionConflict:
		return "conflict"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the pure output of comparing one local entry against an
// optional remote item. Computed, acted on, and discarded; no decision
// log persists beyond the run's output.
type Decision struct {
	Action Action
	Reason string
}

func skip(reason string) Decision {
	return Decision{Action: ActionSkip, Reason: reason}
}

// Counts tallies the outcomes of one run, for the final log line and
// the run history.
type Counts struct {
	Uploaded   int
	Downloaded int
	Created    int
	Skipped    int
	Conflicts  int
	Errors     int
}

// Add accumulates another tally into c.
func (c *Counts) Add(other Counts) {
	c.Uploaded += other.Uploaded
	c.Downloaded += other.Downloaded
	c.Created += other.Created
	c.Skipped += other.Skipped
	c.Conflicts += other.Conflicts
	c.Errors += other.Errors
}
