// Package thumbs derives resized JPEG thumbnail variants from an original
// image. Each size class is produced independently so one failed class never
// blocks the others. Decoding can use libvips for decode-time shrinking with
// a pure-Go fallback.
package thumbs
