// Package storage persists host records, users, permission grants, and
// encrypted credentials in a single BoltDB file. Records are stored as
// JSON; grants and credentials use composite "<owner>/<key>" bucket keys
// so prefix scans return everything belonging to one user or host.
package storage
