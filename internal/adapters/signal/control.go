package signal

import "github.com/dkeye/huddle/internal/core"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, core.MsgPong, nil)
}
