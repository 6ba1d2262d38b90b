//go:build unix || linux || darwin

package nbrly

import "os"

// platformSync invokes fsync on a side file descriptor, per spec.md §4.2.
func platformSync(f *os.File) error {
	return f.Sync()
}
