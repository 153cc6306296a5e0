// Package schema holds the versioned field constraints applied to JEM
// records.
//
// Schemas are plain data. They are written in CUE, checked against the
// #Schema definition at load time, and decoded into Spec values that the
// validate package consumes. A Registry picks the Spec for a record kind
// and form version.
package schema
