// Package extract holds the built-in extractors: pure functions from
// one rendered page to typed dataset records. Extractors never perform
// I/O; composition is declarative, by intersecting the configured
// profile with each extractor's declared capabilities.
package extract
