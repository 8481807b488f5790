//go:build unix

package loader

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func isSystemExhaustion(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)
}

// descriptorLimit returns the soft RLIMIT_NOFILE of the process.
func descriptorLimit() (uint64, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, err
	}
	return uint64(rl.Cur), nil
}

// openDescriptors counts the descriptors currently open in the process.
func openDescriptors() (int, error) {
	for _, dir := range []string{"/proc/self/fd", "/dev/fd"} {
		entries, err := os.ReadDir(dir)
		if err == nil {
			// the listing itself held one descriptor
			return max(len(entries)-1, 0), nil
		}
	}
	return 0, errors.New("no descriptor listing available")
}
