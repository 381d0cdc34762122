package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wxcloudrun/internal/db"
	"github.com/wxcloudrun/internal/metrics"
	"gorm.io/gorm"
)

// CounterStore 定义计数器单行记录的存取能力。
type CounterStore interface {
	Increment(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	Read(ctx context.Context) (int64, error)
}

var (
	_ CounterStore = (*CounterService)(nil)
	_ CounterStore = (*MemoryCounterStore)(nil)
)

// CounterService 基于 gorm 维护 id = 1 的计数记录。
type CounterService struct {
	db *gorm.DB
}

// NewCounterService 构造 CounterService。
func NewCounterService(gdb *gorm.DB) *CounterService {
	return &CounterService{db: gdb}
}

// Increment 读取计数记录，不存在时以 1 创建，否则加一并刷新更新时间。
// 读改写之间没有加锁，并发自增可能互相覆盖。
func (s *CounterService) Increment(ctx context.Context) (int64, error) {
	metrics.CounterOperations.WithLabelValues("inc").Inc()

	var counter db.Counter
	err := s.db.WithContext(ctx).Where("id = ?", db.CounterID).First(&counter).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("load counter: %w", err)
		}
		now := time.Now()
		counter = db.Counter{ID: db.CounterID, Count: 1, CreatedAt: now, UpdatedAt: now}
		if err := s.db.WithContext(ctx).Create(&counter).Error; err != nil {
			return 0, fmt.Errorf("create counter: %w", err)
		}
		return counter.Count, nil
	}

	counter.Count++
	counter.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&counter).Error; err != nil {
		return 0, fmt.Errorf("update counter: %w", err)
	}
	return counter.Count, nil
}

// Clear 删除计数记录，记录不存在时不报错。
func (s *CounterService) Clear(ctx context.Context) error {
	metrics.CounterOperations.WithLabelValues("clear").Inc()

	if err := s.db.WithContext(ctx).Delete(&db.Counter{}, db.CounterID).Error; err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	return nil
}

// Read 返回当前计数，记录不存在时返回 0。
func (s *CounterService) Read(ctx context.Context) (int64, error) {
	var counter db.Counter
	err := s.db.WithContext(ctx).Where("id = ?", db.CounterID).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load counter: %w", err)
	}
	return counter.Count, nil
}

// MemoryCounterStore 在进程内保存计数，供测试与无数据库部署使用。
type MemoryCounterStore struct {
	mu      sync.Mutex
	count   int64
	present bool
}

// NewMemoryCounterStore 返回空的内存计数器。
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{}
}

func (m *MemoryCounterStore) Increment(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		m.present = true
		m.count = 1
		return m.count, nil
	}
	m.count++
	return m.count, nil
}

func (m *MemoryCounterStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.present = false
	m.count = 0
	return nil
}

func (m *MemoryCounterStore) Read(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present {
		return 0, nil
	}
	return m.count, nil
}
