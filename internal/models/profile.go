package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeletedUserName 是资料已不存在的用户在列表中的占位名称。
const DeletedUserName = "Deleted user"

// Profile 代表一个用户的公开资料。ID 与身份提供方的用户 ID 相同。
type Profile struct {
	ID        string                      `gorm:"type:uuid;primaryKey" json:"id"`
	Username  string                      `gorm:"type:varchar(100);index" json:"username"`
	Age       int                         `json:"age,omitempty"`
	Bio       string                      `gorm:"type:text" json:"bio,omitempty"`
	Location  string                      `gorm:"type:varchar(255)" json:"location,omitempty"`
	Interests datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"interests"`
	AvatarURL string                      `gorm:"type:varchar(512)" json:"avatarUrl,omitempty"`
	CreatedAt time.Time                   `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

// TableName 指定 Profile 模型的表名。
func (Profile) TableName() string {
	return "profiles"
}

// DisplayName falls back to a placeholder when the username is empty.
func (p *Profile) DisplayName() string {
	if p == nil {
		return DeletedUserName
	}
	if p.Username == "" {
		return "User"
	}
	return p.Username
}

// ProfileBasicInfo holds minimal public information about a user.
type ProfileBasicInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// BasicInfo 返回资料的最小公开信息。
func (p *Profile) BasicInfo() ProfileBasicInfo {
	return ProfileBasicInfo{ID: p.ID, Username: p.Username, AvatarURL: p.AvatarURL}
}

// ProfileCard 是发现页的一张卡片。
type ProfileCard struct {
	Profile
	LikeCount int64 `json:"likeCount"`
	IsLiked   bool  `json:"isLiked"`
}

// ProfileDetails 是资料详情页。
type ProfileDetails struct {
	Profile
	LikeCount int64 `json:"likeCount"`
	IsLiked   bool  `json:"isLiked"`
	IsFriend  bool  `json:"isFriend"`
}

// ProfileUpdate carries owner-editable fields. Nil pointers are left untouched.
type ProfileUpdate struct {
	Username  *string   `json:"username,omitempty"`
	Age       *int      `json:"age,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	Location  *string   `json:"location,omitempty"`
	Interests *[]string `json:"interests,omitempty"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
}

// Counts 是个人页上显示的各项计数，全部基于已过滤的列表。
type Counts struct {
	Likes           int `json:"likes"`
	Friends         int `json:"friends"`
	Visitors        int `json:"visitors"`
	UnreadMessages  int `json:"unreadMessages"`
	PendingRequests int `json:"pendingRequests"`
}
