package handler

import (
	"github.com/wxcloudrun/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db       *gorm.DB
	counters service.CounterStore
	wechat   *service.WeChatService
	landing  []byte
}

// NewAPI constructs a handler set with shared services.
// gdb may be nil when the counter lives in memory.
func NewAPI(gdb *gorm.DB, counters service.CounterStore, wechat *service.WeChatService, landing []byte) *API {
	return &API{
		db:       gdb,
		counters: counters,
		wechat:   wechat,
		landing:  landing,
	}
}

