//go:build windows || plan9
// +build windows plan9

package device

import "errors"

// ExecRebooter is not supported on this platform.
type ExecRebooter struct {
	BeforeReboot func()
}

// Reboot implements fota.Rebooter.
func (r *ExecRebooter) Reboot() error {
	return errors.New("reboot not supported")
}
