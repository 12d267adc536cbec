package models

import "time"

// Block 是一条有向拉黑边 (blocker -> blocked)。只插入或删除，从不更新。
// A->B 与 B->A 相互独立。
type Block struct {
	BaseModel
	BlockerID string `gorm:"type:uuid;not null;uniqueIndex:idx_block_pair,priority:1" json:"blockerId"`
	BlockedID string `gorm:"type:uuid;not null;uniqueIndex:idx_block_pair,priority:2;index" json:"blockedId"`
}

// TableName 指定 Block 模型的表名。
func (Block) TableName() string {
	return "blocks"
}

// BlockStatus 是一对用户之间派生出的拉黑状态。
type BlockStatus struct {
	IsBlocked     bool `json:"isBlocked"`     // 任一方向
	IBlockedThem  bool `json:"iBlockedThem"`  // viewer -> subject
	TheyBlockedMe bool `json:"theyBlockedMe"` // subject -> viewer
}

// NewBlockStatus derives the combined flag from the two directions.
func NewBlockStatus(iBlockedThem, theyBlockedMe bool) BlockStatus {
	return BlockStatus{
		IsBlocked:     iBlockedThem || theyBlockedMe,
		IBlockedThem:  iBlockedThem,
		TheyBlockedMe: theyBlockedMe,
	}
}

// BlockedUser 是“我拉黑的人”列表中的一项。
type BlockedUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	BlockedAt time.Time `json:"blockedAt"`
}
