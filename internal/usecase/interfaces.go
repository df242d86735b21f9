package usecase

import (
	"context"

	"github.com/hc1node/forkmonitor/internal/entity"
)

type (
	Monitor interface {
		Snapshot() *entity.Snapshot
	}
	NodeTracker interface {
		RecordSuccess(string, entity.Momentum) error
		RecordFailure(string, error) error
		Snapshot() []entity.NodeState
	}
	NodeWebAPI interface {
		FetchLatest(context.Context, entity.NodeIdentity) (entity.Momentum, error)
	}
	SnapshotBroker interface {
		Publish(*entity.Message) error
	}
)
