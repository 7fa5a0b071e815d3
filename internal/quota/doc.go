// Package quota gates batch admission on a per-owner completed-job budget.
// Admission is checked once per batch before any storage work starts, and
// usage is incremented atomically only when a job completes.
package quota
