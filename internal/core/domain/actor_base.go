package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef keeps domain messages free of a direct protoactor dependency in
// their fields while staying convertible to *actor.PID at the edges.
type ActorRef actor.PID

// ActorRequestMixIn carries an optional explicit reply target. When unset,
// responders fall back to the envelope sender.
type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// ActorResponseMixIn carries the error of a failed operation. Responses
// travel as values, so the error rides inside the message rather than as a
// second return.
type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}
