// Package pipeline turns one JEM form file into normalized rows.
//
// Process runs the stages in a fixed order:
//
//	parse -> resolve version -> select schemas -> validate slice
//	-> extract attempts -> validate attempts -> normalize operator
//	-> flatten -> normalize dates -> normalize region
//	-> derive container -> backfill expected fields -> tag validity
//
// Only two problems stop a record: input that is not a JSON object and
// a slice without its join key. Both are returned as *StructuralError.
// Everything else (validation violations, unparseable dates, unknown
// operators, unrecognized regions) empties the affected field, is
// logged, and is returned in Result.Issues.
//
// A Pipeline is read-only after construction. Process may be called from
// many goroutines; ProcessAll does so with a bounded worker pool.
package pipeline
