// Package rbf reads and writes RBF files: an append-only sequence of
// self-describing frames, each closed by a checksummed trailer so the file
// can be walked backwards from its tail without any index.
//
// A File is not internally synchronized. One goroutine writes; any number
// of goroutines may read frames that lie below TailOffset.
package rbf
