package services

import (
	"context"

	"social-go/internal/models"
	"social-go/internal/storage"
)

// BlockOracle 判定两个用户之间的拉黑关系。每次调用都重新查询存储，不做缓存：
// 拉黑可能随时在其他设备上发生。标识为空时所有判定均为 false。
type BlockOracle interface {
	// IsBlocked reports a block in either direction.
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	// IsBlockedBy reports whether b blocked a.
	IsBlockedBy(ctx context.Context, a, b string) (bool, error)
	// HasBlocked reports whether a blocked b.
	HasBlocked(ctx context.Context, a, b string) (bool, error)
	GetBlockStatus(ctx context.Context, viewer, subject string) (models.BlockStatus, error)
}

type blockOracle struct {
	blocks storage.BlockRepository
}

// NewBlockOracle creates an oracle over the blocks table.
func NewBlockOracle(blocks storage.BlockRepository) BlockOracle {
	return &blockOracle{blocks: blocks}
}

func (o *blockOracle) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	status, err := o.GetBlockStatus(ctx, a, b)
	return status.IsBlocked, err
}

func (o *blockOracle) IsBlockedBy(ctx context.Context, a, b string) (bool, error) {
	return o.edge(ctx, b, a)
}

func (o *blockOracle) HasBlocked(ctx context.Context, a, b string) (bool, error) {
	return o.edge(ctx, a, b)
}

func (o *blockOracle) GetBlockStatus(ctx context.Context, viewer, subject string) (models.BlockStatus, error) {
	if viewer == "" || subject == "" {
		return models.BlockStatus{}, nil
	}
	iBlocked, err := o.edge(ctx, viewer, subject)
	if err != nil {
		return models.BlockStatus{}, err
	}
	theyBlocked, err := o.edge(ctx, subject, viewer)
	if err != nil {
		return models.BlockStatus{}, err
	}
	return models.NewBlockStatus(iBlocked, theyBlocked), nil
}

func (o *blockOracle) edge(ctx context.Context, blocker, blocked string) (bool, error) {
	if blocker == "" || blocked == "" {
		return false, nil
	}
	exists, err := o.blocks.Exists(ctx, blocker, blocked)
	if err != nil {
		return false, storeErr("check block", err)
	}
	return exists, nil
}
