// Package matcher compiles file-name patterns (substring, extension list,
// regular expression, glob) into immutable Matchers that report the byte
// ranges of every hit. A compiled Matcher holds no mutable state and may be
// shared by any number of goroutines.
package matcher
