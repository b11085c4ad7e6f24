//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/windows.go
//

package sockstream

import "golang.org/x/sys/windows"

const (
	errEADDRNOTAVAIL = windows.WSAEADDRNOTAVAIL
	errECANCELED     = windows.ERROR_OPERATION_ABORTED
	errECONNABORTED  = windows.WSAECONNABORTED
	errECONNREFUSED  = windows.WSAECONNREFUSED
	errECONNRESET    = windows.WSAECONNRESET
	errEHOSTUNREACH  = windows.WSAEHOSTUNREACH
	errENETDOWN      = windows.WSAENETDOWN
	errENETUNREACH   = windows.WSAENETUNREACH
	errENODEV        = windows.ERROR_DEV_NOT_EXIST
	errEPIPE         = windows.ERROR_BROKEN_PIPE
)
