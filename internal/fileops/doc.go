// Package fileops declares the collaborator interfaces shared by the worker,
// the HTTP front end, and the CLI: clocks, id generators, blob stores,
// hashers, and completion publishers.
package fileops
