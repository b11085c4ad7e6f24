//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly && !windows

// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import "errors"

func setReuseAddr(fd uintptr) error {
	return errors.ErrUnsupported
}

func setReusePort(fd uintptr) error {
	return errors.ErrUnsupported
}

func setBroadcast(fd uintptr) error {
	return errors.ErrUnsupported
}

func setV6Only(fd uintptr, on bool) error {
	return errors.ErrUnsupported
}
