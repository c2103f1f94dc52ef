package stream

import (
	"context"
	"fmt"
	"iter"
)

// subStreamRecords sources records from the parent stream's embedded
// collection. For each parent record: extract the nested container,
// apply the optional filter, emit the embedded page, then fall back to
// direct pagination of this stream's own endpoint for any overflow
// (has_more). A parent failure is fatal for the whole read.
func (s *Stream) subStreamRecords(ctx context.Context, _ State) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		parents := s.parent.Read(ctx, nil, nil)
		defer parents.Close()

		for parents.Next() {
			parentRec := parents.Record()
			parentID, _ := recordID(parentRec)

			container, ok := parentRec[s.cfg.SubItemsAttr].(map[string]any)
			if !ok || len(container) == 0 {
				continue
			}

			items := extractItems(container["data"])
			if s.cfg.Filter != nil {
				items = s.filterItems(items)
			}

			for _, item := range items {
				s.injectParentID(item, parentID)
				streamRecordsTotal.WithLabelValues(s.cfg.Name).Inc()
				if !yield(item, nil) {
					return
				}
			}

			// Embedded page incomplete: continue from the last embedded
			// item on the sub-entity's own list endpoint.
			hasMore, _ := container["has_more"].(bool)
			if !hasMore || len(items) == 0 {
				continue
			}
			lastID, ok := recordID(items[len(items)-1])
			if !ok {
				yield(nil, fmt.Errorf("stream %q: embedded item in %q has no id", s.cfg.Name, s.cfg.SubItemsAttr))
				return
			}

			substreamOverflowsTotal.WithLabelValues(s.cfg.Name).Inc()
			s.logger.Debug().
				Str("parent_id", parentID).
				Str(startingAfterParam, lastID).
				Msg("Embedded page incomplete, paginating sub-entity endpoint")

			overflow := Slice{s.cfg.ParentID: parentID, startingAfterParam: lastID}
			for rec, err := range s.pageRecords(ctx, overflow, nil) {
				if err != nil {
					yield(nil, err)
					return
				}
				s.injectParentID(rec, parentID)
				if !yield(rec, nil) {
					return
				}
			}
		}

		if err := parents.Err(); err != nil {
			yield(nil, fmt.Errorf("stream %q: parent %q: %w", s.cfg.Name, s.parent.Name(), err))
		}
	}
}

// perParentRecords issues one direct paginated read per parent record,
// with an implicit slice carrying the parent's id. Used by streams
// whose endpoint is scoped to a parent but has no embedded container.
func (s *Stream) perParentRecords(ctx context.Context, state State) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		parents := s.parent.Read(ctx, nil, nil)
		defer parents.Close()

		for parents.Next() {
			parentID, ok := recordID(parents.Record())
			if !ok {
				continue
			}

			slice := Slice{s.cfg.ParentID: parentID}
			for rec, err := range s.pageRecords(ctx, slice, state) {
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
		}

		if err := parents.Err(); err != nil {
			yield(nil, fmt.Errorf("stream %q: parent %q: %w", s.cfg.Name, s.parent.Name(), err))
		}
	}
}

// filterItems keeps items matching the configured attribute filter.
func (s *Stream) filterItems(items []Record) []Record {
	kept := items[:0:0]
	for _, item := range items {
		if value, ok := item[s.cfg.Filter.Attr].(string); ok && value == s.cfg.Filter.Value {
			kept = append(kept, item)
		}
	}
	return kept
}

// injectParentID adds the parent reference to an emitted item unless
// the item already carries one.
func (s *Stream) injectParentID(rec Record, parentID string) {
	if !s.cfg.AddParentID || parentID == "" {
		return
	}
	if _, ok := rec[s.cfg.ParentID]; !ok {
		rec[s.cfg.ParentID] = parentID
	}
}

// extractItems normalizes the container's "data" array. Decoded JSON
// arrives as []any; fakes may hand over []Record directly.
func extractItems(v any) []Record {
	switch list := v.(type) {
	case []Record:
		return list
	case []any:
		items := make([]Record, 0, len(list))
		for _, el := range list {
			if rec, ok := el.(map[string]any); ok {
				items = append(items, rec)
			}
		}
		return items
	default:
		return nil
	}
}
