package model

import (
	"time"
)

// Topic 论坛主题，挂在房间或具体曲目下
type Topic struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RoomSlug  string    `json:"roomSlug" gorm:"size:64;index;not null"`
	TrackID   *int64    `json:"trackId,omitempty" gorm:"index"`
	Title     string    `json:"title" gorm:"size:200;not null"`
	AuthorID  int64     `json:"authorId" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定表名
func (Topic) TableName() string {
	return "topics"
}

// Reply 主题回帖
// ID 由服务端在落库前生成，事件与持久化行共享同一身份，便于幂等合并
type Reply struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	TopicID   int64     `json:"topicId" gorm:"index;not null"`
	AuthorID  int64     `json:"authorId" gorm:"not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (Reply) TableName() string {
	return "replies"
}

// Marginalia 曲目旁注：挂在曲目时间轴某一位置的短评
type Marginalia struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	TrackID   int64     `json:"trackId" gorm:"index;not null"`
	AuthorID  int64     `json:"authorId" gorm:"not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Position  float64   `json:"position"` // 曲目内偏移，秒
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// TableName 指定表名
func (Marginalia) TableName() string {
	return "marginalia"
}
