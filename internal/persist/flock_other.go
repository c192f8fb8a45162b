//go:build !unix

package persist

import "os"

const noFollow = 0

// Without flock only the in-process lock table applies.
func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
