package bulk

import "github.com/roach88/bulkstep/internal/model"

// Result is the accumulated outcome of one step operation. Only the member
// for Mode is meaningful: Created for creates, Updated for updates and
// Deleted for deletes.
type Result struct {
	Mode    Mode            `json:"mode"`
	Created []*model.Entity `json:"created,omitempty"`
	Updated int64           `json:"updated"`
	Deleted DeleteCount     `json:"deleted"`
}

// Rows returns the number of rows the result accounts for.
func (r Result) Rows() int64 {
	switch r.Mode {
	case ModeCreate:
		return int64(len(r.Created))
	case ModeUpdate:
		return r.Updated
	case ModeDelete:
		return r.Deleted.Total
	default:
		return 0
	}
}

// Flatten folds per-chunk results of one mode into a single result.
// Creates concatenate in chunk order, updates sum, and deletes sum both the
// totals and the per-type breakdown.
func Flatten(mode Mode, partials ...Result) Result {
	out := Result{Mode: mode}
	switch mode {
	case ModeCreate:
		out.Created = []*model.Entity{}
	case ModeDelete:
		out.Deleted.ByType = map[string]int64{}
	}
	for _, p := range partials {
		out.add(p)
	}
	return out
}

func (r *Result) add(p Result) {
	switch r.Mode {
	case ModeCreate:
		r.Created = append(r.Created, p.Created...)
	case ModeUpdate:
		r.Updated += p.Updated
	case ModeDelete:
		r.Deleted.Add(p.Deleted)
	}
}
