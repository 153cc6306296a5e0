// Package harness regression-tests pipeline configurations.
//
// A scenario names a set of records, the configuration to process them
// with, and assertions on the rows and issues that come out. Scenarios
// run against the real pipeline; nothing is stubbed.
//
// # Scenario Format
//
//	name: composed_container
//	description: "Production 2.0.0 record composes its container ID"
//	config:
//	  users: users.csv
//	created: "2018-03-15T00:00:00Z"
//	inputs:
//	  - name: slice.json
//	    path: records/slice.json
//	  - name: broken.json
//	    raw: "[1, 2]"
//	assertions:
//	  - type: row_count
//	    input: slice.json
//	    count: 2
//	  - type: row_values
//	    input: slice.json
//	    row: 0
//	    expect: { container: "P1S4_180314_012_A01", roi_super: Cortical }
//	  - type: issue_absent
//	    input: slice.json
//	    code: I007
//	  - type: structural_error
//	    input: broken.json
//	    code: P001
//
// # Assertion Types
//
//   - row_count: the input produced exactly count rows
//   - row_values: a subset of columns on one row, compared as canonical JSON
//   - issue_present / issue_absent: an issue code was or was not reported
//   - structural_error: the input failed with the given code
//
// # Golden Files
//
// Each run yields a canonical JSON snapshot of every row plus issue codes
// (messages are left out). RunWithGolden compares it with goldie; the
// jemnorm test command keeps snapshots in a golden/ directory beside the
// scenarios.
//
// Inputs are stamped with a fixed creation time so jem_created is stable.
package harness
