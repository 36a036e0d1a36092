//go:build unix

package utils

import "syscall"

// setSocketOptions widens the kernel receive and send buffers of a dialed
// socket so many parallel range streams are not window-limited.
func setSocketOptions(fd uintptr, size int) error {
	if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, size); err != nil {
		return err
	}
	return syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, size)
}
