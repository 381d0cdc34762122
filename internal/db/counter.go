package db

import "time"

// CounterID 是计数器单行记录的固定主键。
const CounterID uint = 1

// Counter 记录全局共享的计数值，表中至多存在 id = 1 的一行。
type Counter struct {
	ID        uint      `gorm:"primaryKey;autoIncrement:false"`
	Count     int64     `gorm:"not null;default:1"`
	CreatedAt time.Time `gorm:"column:createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt"`
}

// TableName 沿用云托管模板创建的表名，便于复用已有数据。
func (Counter) TableName() string {
	return "Counters"
}
