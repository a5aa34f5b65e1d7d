// Copyright (c) 2022 Runetale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD 3-Clause License
// license that can be found in the LICENSE file.

package paths

import (
	"runtime"
)

func DefaultKillSwitchConfigFile() string {
	switch runtime.GOOS {
	case "freebsd", "openbsd":
		return "/usr/local/etc/runetale/killswitch.json"
	default:
		return "/etc/runetale/killswitch.json"
	}
}

func DefaultKillSwitchLogFile() string {
	return "/var/log/runetale/killswitch.log"
}
