package model

import (
	"time"
)

// Room 试听室：一组按曲序排列的曲目与共享的实时状态
type Room struct {
	Slug        string    `json:"slug" gorm:"primaryKey;size:64"`
	Title       string    `json:"title" gorm:"size:200;not null"`
	Description string    `json:"description" gorm:"type:text"`
	IsActive    bool      `json:"isActive" gorm:"default:true;index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Room) TableName() string {
	return "rooms"
}

// Track 试听室曲目
// ReleasedAt 之前不可见；DecayStartAt 之后进入衰减窗口；IsArchived 为终态覆盖，
// 一旦置true永不回退。持久化字段不包含衰减状态，衰减状态每次读取时重新推导。
type Track struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	RoomSlug     string     `json:"roomSlug" gorm:"size:64;index;not null"`
	Title        string     `json:"title" gorm:"size:200;not null"`
	TrackNumber  int        `json:"trackNumber" gorm:"not null;index"`
	Duration     int        `json:"duration"` // 秒，仅展示用
	AudioKey     string     `json:"-" gorm:"size:255"` // MinIO对象键，快照时换成预签名URL
	ReleasedAt   time.Time  `json:"releasedAt" gorm:"not null"`
	DecayStartAt *time.Time `json:"decayStartAt,omitempty"`
	IsArchived   bool       `json:"isArchived" gorm:"default:false"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// RoomListItem 房间列表项（API 响应用）
type RoomListItem struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TrackCount  int64  `json:"trackCount"`
}
