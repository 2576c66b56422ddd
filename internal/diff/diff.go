// Package diff compares two bulks of one entity type by content hash.
package diff

import (
	"github.com/roach88/bulkstep/internal/model"
)

// Result splits two bulks into what is unique to each side and what the
// sides share. Every list keeps its own side's original order. When a hash
// occurs more than once on a side, every occurrence lands in that side's
// list, so LeftCommon and RightCommon may differ in length.
type Result struct {
	LeftOnly    []*model.Entity `json:"left_only"`
	RightOnly   []*model.Entity `json:"right_only"`
	LeftCommon  []*model.Entity `json:"left_common"`
	RightCommon []*model.Entity `json:"right_common"`
}

// Bulks diffs left against right, hashing each entity on fields.
//
// Every entity on both sides must share one entity type, otherwise the call
// fails with a TypeMismatchError. Persisted entities match by identity,
// transient ones by the values of fields (see model.HashEntity).
func Bulks(left, right []*model.Entity, fields []string) (Result, error) {
	result := Result{
		LeftOnly:    []*model.Entity{},
		RightOnly:   []*model.Entity{},
		LeftCommon:  []*model.Entity{},
		RightCommon: []*model.Entity{},
	}

	t, err := commonType(left, right)
	if err != nil {
		return Result{}, err
	}
	if t == nil {
		return result, nil
	}

	leftHashes, err := hashAll(left, fields)
	if err != nil {
		return Result{}, err
	}
	rightHashes, err := hashAll(right, fields)
	if err != nil {
		return Result{}, err
	}

	inLeft := make(map[model.Hash]bool, len(leftHashes))
	for _, h := range leftHashes {
		inLeft[h] = true
	}
	inRight := make(map[model.Hash]bool, len(rightHashes))
	for _, h := range rightHashes {
		inRight[h] = true
	}

	for i, e := range left {
		if inRight[leftHashes[i]] {
			result.LeftCommon = append(result.LeftCommon, e)
		} else {
			result.LeftOnly = append(result.LeftOnly, e)
		}
	}
	for i, e := range right {
		if inLeft[rightHashes[i]] {
			result.RightCommon = append(result.RightCommon, e)
		} else {
			result.RightOnly = append(result.RightOnly, e)
		}
	}
	return result, nil
}

// Swap returns the result with left and right exchanged.
func (r Result) Swap() Result {
	return Result{
		LeftOnly:    r.RightOnly,
		RightOnly:   r.LeftOnly,
		LeftCommon:  r.RightCommon,
		RightCommon: r.LeftCommon,
	}
}

// Empty reports whether neither side has anything the other lacks.
func (r Result) Empty() bool {
	return len(r.LeftOnly) == 0 && len(r.RightOnly) == 0
}

// commonType returns the single entity type of both bulks, or nil when both
// are empty.
func commonType(left, right []*model.Entity) (*model.EntityType, error) {
	var t *model.EntityType
	for _, side := range [][]*model.Entity{left, right} {
		for i, e := range side {
			if e == nil || e.Type == nil {
				return nil, model.NewConfigurationError("entity %d has no type", i)
			}
			if t == nil {
				t = e.Type
				continue
			}
			if e.Type != t && e.Type.Name != t.Name {
				return nil, model.NewTypeMismatchError(t.Name, e.Type.Name)
			}
		}
	}
	return t, nil
}

func hashAll(entities []*model.Entity, fields []string) ([]model.Hash, error) {
	hashes := make([]model.Hash, len(entities))
	for i, e := range entities {
		h, err := model.HashEntity(e, fields)
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}
	return hashes, nil
}
