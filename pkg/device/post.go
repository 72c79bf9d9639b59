package device

import (
	"github.com/robotalks/gpionode/pkg/fota"
	fx "github.com/robotalks/gpionode/pkg/framework"
	"github.com/robotalks/gpionode/pkg/transport"
)

// CommandPoster posts every chunk from a command connection as
// CommandFrameReceived.
func CommandPoster(poster fx.EventPoster) func(*transport.Conn, []byte) {
	return func(conn *transport.Conn, data []byte) {
		poster.PostEvent(CommandFrameReceived{Conn: conn, Data: data})
	}
}

// DatagramPoster posts every heartbeat datagram as
// HeartbeatProbeReceived.
func DatagramPoster(poster fx.EventPoster) func(*transport.Datagram) {
	return func(d *transport.Datagram) {
		poster.PostEvent(HeartbeatProbeReceived{Conn: d, Data: d.Data})
	}
}

// FotaResultPoster delivers download results to the loop as
// FotaCompleted. It is used as fota.Orchestrator.Notify.
func FotaResultPoster(poster fx.EventPoster) func(fota.Result) {
	return func(res fota.Result) {
		poster.PostEvent(FotaCompleted{Result: res})
	}
}
