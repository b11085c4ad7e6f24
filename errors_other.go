//go:build !unix && !windows

// SPDX-License-Identifier: GPL-3.0-or-later

package sockstream

import "errors"

// These platforms do not expose BSD socket errno values; the
// placeholders never match so such errors classify as [KindOther].
var (
	errEADDRNOTAVAIL = errors.New("EADDRNOTAVAIL")
	errECANCELED     = errors.New("ECANCELED")
	errECONNABORTED  = errors.New("ECONNABORTED")
	errECONNREFUSED  = errors.New("ECONNREFUSED")
	errECONNRESET    = errors.New("ECONNRESET")
	errEHOSTUNREACH  = errors.New("EHOSTUNREACH")
	errENETDOWN      = errors.New("ENETDOWN")
	errENETUNREACH   = errors.New("ENETUNREACH")
	errENODEV        = errors.New("ENODEV")
	errEPIPE         = errors.New("EPIPE")
)
