//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import "golang.org/x/sys/windows"

func setReuseAddr(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
}

// Windows has no SO_REUSEPORT: SO_REUSEADDR already allows several
// sockets to bind the same port and receive multicast copies.
func setReusePort(fd uintptr) error {
	return nil
}

func setBroadcast(fd uintptr) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
}

func setV6Only(fd uintptr, on bool) error {
	value := 0
	if on {
		value = 1
	}
	return windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IPV6, windows.IPV6_V6ONLY, value)
}
