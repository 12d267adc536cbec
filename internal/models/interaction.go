package models

import "time"

// Like 是一条有向点赞边，每个有序对唯一。
type Like struct {
	BaseModel
	LikerID string `gorm:"type:uuid;not null;uniqueIndex:idx_like_pair,priority:1" json:"likerId"`
	LikedID string `gorm:"type:uuid;not null;uniqueIndex:idx_like_pair,priority:2;index" json:"likedId"`
}

// TableName 指定 Like 模型的表名。
func (Like) TableName() string {
	return "likes"
}

// Visit 记录一次资料访问。同一访客对同一资料每天只记一次。
type Visit struct {
	BaseModel
	VisitorID string    `gorm:"type:uuid;not null;uniqueIndex:idx_visit_daily,priority:1" json:"visitorId"`
	ViewedID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_visit_daily,priority:2;index" json:"viewedId"`
	VisitDate string    `gorm:"type:date;not null;uniqueIndex:idx_visit_daily,priority:3" json:"visitDate"`
	VisitedAt time.Time `gorm:"not null;index" json:"visitedAt"`
}

// TableName 指定 Visit 模型的表名。
func (Visit) TableName() string {
	return "visits"
}

// VisitDateLayout is the layout of Visit.VisitDate.
const VisitDateLayout = "2006-01-02"

// LikerEntry 是“谁赞了我”列表中的一项。
type LikerEntry struct {
	Liker   ProfileBasicInfo `json:"liker"`
	LikedAt time.Time        `json:"likedAt"`
}

// VisitorEntry 是访客列表中的一项。
type VisitorEntry struct {
	Visitor   ProfileBasicInfo `json:"visitor"`
	VisitedAt time.Time        `json:"visitedAt"`
}
