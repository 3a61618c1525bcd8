//go:build !unix

package localfile

import "os"

// Cross-process locking is unix-only; the in-process mutex still serializes writers.
func lockFile(*os.File) error   { return nil }
func unlockFile(*os.File) error { return nil }
