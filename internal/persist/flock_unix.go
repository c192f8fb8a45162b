//go:build unix

package persist

import (
	"os"

	"golang.org/x/sys/unix"
)

// noFollow refuses to open an entry through a symlink.
const noFollow = unix.O_NOFOLLOW

func lockFile(f *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			return err
		}
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
