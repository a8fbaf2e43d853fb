// Package dedupe suppresses repeated processing of platform updates that are
// delivered more than once within a time window.
package dedupe
