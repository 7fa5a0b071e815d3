// Command quotactl inspects and adjusts per-owner upload quota limits
// directly against the service database.
package main
