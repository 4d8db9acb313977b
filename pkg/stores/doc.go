// Package stores persists run history in SQLite.
//
// Each pipeline run becomes a row in runs; extension state transitions and
// run events are appended to their own tables. The schema is managed through
// embedded migrations applied at startup.
package stores
