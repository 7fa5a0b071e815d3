// Package validate implements the upload validation gate. It rejects
// unsupported, oversized, undersized, corrupt, or too-small images before any
// storage I/O happens, so invalid uploads can never leave orphaned objects.
package validate
