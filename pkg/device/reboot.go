//go:build !windows && !plan9
// +build !windows,!plan9

package device

import (
	"os"
	"syscall"

	"github.com/golang/glog"
)

// ExecRebooter restarts the node by re-executing the running binary,
// which boots into the newly active bank.
type ExecRebooter struct {
	// BeforeReboot is optional, e.g. to close the registry.
	BeforeReboot func()
}

// Reboot implements fota.Rebooter. It only returns on error.
func (r *ExecRebooter) Reboot() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if r.BeforeReboot != nil {
		r.BeforeReboot()
	}
	glog.Infof("rebooting %s", exe)
	glog.Flush()
	return syscall.Exec(exe, os.Args, os.Environ())
}
