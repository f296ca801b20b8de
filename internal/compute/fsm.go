package compute

import (
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// Event is the closed set of state-machine triggers; together with the
// transition table below it makes invalid transitions unrepresentable
// rather than a matter of string comparison.
type Event string

const (
	EventRun                  Event = "run"
	EventContainerStarted     Event = "container_started"
	EventContainerCreateFailed Event = "container_create_failed"
	EventStop                 Event = "stop"
	EventContainerStopped     Event = "container_stopped"
	EventStart                Event = "start"
	EventDelete               Event = "delete"
)

// transitions is the exhaustive legal-transition table. Starting or
// stopping outside it fails with InvalidArgument.
var transitions = map[model.InstanceStatus]map[Event]model.InstanceStatus{
	"": {
		EventRun: model.InstanceProvisioning,
	},
	model.InstanceProvisioning: {
		EventContainerStarted:      model.InstanceRunning,
		EventContainerCreateFailed: model.InstanceTerminated,
		EventDelete:                model.InstanceTerminated,
	},
	model.InstanceRunning: {
		EventStop:   model.InstanceStopping,
		EventDelete: model.InstanceTerminated,
	},
	model.InstanceStopping: {
		EventContainerStopped: model.InstanceStopped,
		EventDelete:           model.InstanceTerminated,
	},
	model.InstanceStopped: {
		EventStart:  model.InstanceRunning,
		EventDelete: model.InstanceTerminated,
	},
}

// Transition validates and returns the next state for (from, event), or
// InvalidArgument if the pair is not in the table.
func Transition(from model.InstanceStatus, ev Event) (model.InstanceStatus, error) {
	row, ok := transitions[from]
	if !ok {
		return "", cmn.NewInvalidArgument("instance state %q accepts no events", from)
	}
	to, ok := row[ev]
	if !ok {
		return "", cmn.NewInvalidArgument("event %q is not legal from state %q", ev, from)
	}
	return to, nil
}

// ReconcileStatus maps container state to the instance state a periodic
// reconciler writes through authoritatively: running -> RUNNING,
// exited|dead|paused -> STOPPED, not-found -> TERMINATED.
func ReconcileStatus(containerStatus string) model.InstanceStatus {
	switch containerStatus {
	case "running":
		return model.InstanceRunning
	case "exited", "dead", "paused":
		return model.InstanceStopped
	case "not-found":
		return model.InstanceTerminated
	default:
		return model.InstanceStopped
	}
}
