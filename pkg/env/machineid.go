// Package env provides helpers shared by the node and client envs.
package env

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID keys the protected machine ID so the raw ID isn't exposed.
const AppID = "gpionode"

// MachineID retrieves the ID identifying the machine, empty if not
// available.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		glog.V(1).Infof("machine ID unavailable: %v", err)
		return ""
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
