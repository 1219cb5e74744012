package domain

import (
	"github.com/sebmartin/ve-renogy-rover/pkg/rover_modbus"
)

const (
	ACTOR_ID_MASTER = "master"
	ACTOR_ID_ROVER  = "rover"
	ACTOR_ID_POLLER = "poller"
	ACTOR_ID_DBUS   = "dbus"
)

// OpenRequest asks the rover actor to open the serial handle and run the
// identity handshake.
type OpenRequest struct {
	ActorRequestMixIn
}

type OpenResponse struct {
	ActorResponseMixIn
	Info *rover_modbus.DeviceInfo
}

// ReadDynamicDataRequest asks for one decoded snapshot of the dynamic
// register block.
type ReadDynamicDataRequest struct {
	ActorRequestMixIn
}

type ReadDynamicDataResponse struct {
	ActorResponseMixIn
	Reading *rover_modbus.RegisterReading
}

// CloseRequest releases the serial handle. Closing an already closed handle
// is not an error.
type CloseRequest struct {
	ActorRequestMixIn
}

type CloseResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

// ActorHealthResponse reports one actor's health. The master aggregates its
// children's reports into Components; leaf actors leave it nil.
type ActorHealthResponse struct {
	ActorResponseMixIn
	Id         string
	Healthy    bool
	State      string
	Components []ActorHealthResponse
}
