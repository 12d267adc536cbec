package models

import "gorm.io/gorm"

// FriendshipStatus 定义好友关系的状态
type FriendshipStatus string

const (
	FriendshipStatusPending  FriendshipStatus = "pending"
	FriendshipStatusAccepted FriendshipStatus = "accepted"
)

// Friendship represents a friend request and, once accepted, the friendship itself.
// One row per unordered pair: UserLow/UserHigh hold the canonical order and
// carry the unique index, SenderID/ReceiverID keep the request direction.
type Friendship struct {
	BaseModel
	SenderID   string           `gorm:"type:uuid;not null;index" json:"senderId"`
	ReceiverID string           `gorm:"type:uuid;not null;index" json:"receiverId"`
	UserLow    string           `gorm:"type:uuid;not null;uniqueIndex:idx_friendship_pair" json:"-"`
	UserHigh   string           `gorm:"type:uuid;not null;uniqueIndex:idx_friendship_pair" json:"-"`
	Status     FriendshipStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
}

// TableName 指定 Friendship 模型的表名。
func (Friendship) TableName() string {
	return "friendships"
}

// EnsureCanonicalOrder fills UserLow/UserHigh from the sender and receiver.
func (f *Friendship) EnsureCanonicalOrder() {
	f.UserLow, f.UserHigh = OrderedPair(f.SenderID, f.ReceiverID)
}

// BeforeCreate keeps the canonical pair columns in sync with the direction.
func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	f.EnsureCanonicalOrder()
	return f.BaseModel.BeforeCreate(tx)
}

// OtherParty returns the id of the endpoint that is not userID.
func (f *Friendship) OtherParty(userID string) string {
	if f.SenderID == userID {
		return f.ReceiverID
	}
	return f.SenderID
}

// FriendRequestWithSender is a pending request enriched with the sender's profile.
type FriendRequestWithSender struct {
	Friendship
	Sender ProfileBasicInfo `json:"sender"`
}

// FriendEntry 是好友列表中的一项。
type FriendEntry struct {
	FriendshipID string           `json:"friendshipId"`
	Friend       ProfileBasicInfo `json:"friend"`
}
