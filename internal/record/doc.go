// Package record defines the in-memory shapes of JEM form data.
//
// A Raw record is the decoded JSON object of one form submission. Slice
// fields live at the top level and one list field holds the nested
// pipette attempts. A Row is the flattened, dot-keyed view that every
// normalization stage reads and writes.
//
// Canonical serialization (MarshalCanonical) and content hashing
// (RowHash) give rows a stable identity for storage and golden
// comparisons:
//   - Object keys sorted by UTF-16 code units
//   - No HTML escaping
//   - Strings NFC normalized
//   - null preserved as the explicit missing marker
package record
