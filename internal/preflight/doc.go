// Package preflight provides readiness checks for the queue database, the
// storage bucket and the local paths ferry depends on.
//
// These checks run in two contexts:
//   - `ferry run` calls RunAll at startup and logs failures without aborting,
//     since a storage outage at boot should not keep the loop from starting.
//   - `ferry preflight` prints every Result and exits non-zero on a failure.
package preflight
