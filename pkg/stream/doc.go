// Package stream implements the incremental extraction engine for the
// Stripe REST API: streams, incremental cursors, and parent/child
// sub-stream composition.
//
// A Stream produces a lazy, restartable sequence of records for one
// logical entity. Three read modes exist, selected by configuration:
//
//   - Direct: paginate the entity's own list endpoint until the fetcher
//     reports no continuation token.
//   - Per-parent: read every record of a parent stream and issue one
//     paginated request per parent record (e.g. customer balance
//     transactions).
//   - Sub-stream: extract records from a nested collection embedded in
//     each parent record, falling back to direct pagination only when the
//     embedded page is incomplete (has_more). This amortizes child-fetch
//     cost across the parent's own pagination.
//
// Incremental streams declare a cursor field (a creation timestamp).
// Requests are bounded by created[gte] and the caller folds UpdateState
// over emitted records to compute the next persisted cursor. Stripe
// returns most-recent-first, so state must never be persisted before a
// full read completes; see pkg/syncer.
//
// Example usage:
//
//	cfg, _ := stream.Lookup("invoices")
//	s, err := stream.New(cfg, fetcher, stream.Options{StartDate: 1609459200})
//	if err != nil {
//		return err
//	}
//	rows := s.Read(ctx, nil, state)
//	defer rows.Close()
//	for rows.Next() {
//		state = s.UpdateState(state, rows.Record())
//	}
//	if err := rows.Err(); err != nil {
//		return err
//	}
package stream
