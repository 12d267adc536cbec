package models

import "time"

// Message 代表存储在数据库中的私信。
// 持久化后只有 IsRead 会改变，并且只由接收方的会话修改。
type Message struct {
	BaseModel
	SenderID   string `gorm:"type:uuid;not null;index:idx_message_pair,priority:1" json:"senderId"`
	ReceiverID string `gorm:"type:uuid;not null;index:idx_message_pair,priority:2;index:idx_message_unread,priority:1" json:"receiverId"`
	Content    string `gorm:"type:text;not null" json:"content"`
	IsRead     bool   `gorm:"not null;default:false;index:idx_message_unread,priority:2" json:"isRead"`
}

// TableName 指定 Message 模型的表名。
func (Message) TableName() string {
	return "messages"
}

// Involves reports whether the message belongs to the unordered pair (a, b).
func (m *Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// ChatPartner 是会话列表中的一项。
type ChatPartner struct {
	Partner       ProfileBasicInfo `json:"partner"`
	LastMessage   string           `json:"lastMessage"`
	LastMessageAt time.Time        `json:"lastMessageAt"`
	UnreadCount   int              `json:"unreadCount"`
}
