// Package startup handles application initialization: environment
// configuration, directory setup, build information, and structured startup
// and shutdown logging.
package startup
