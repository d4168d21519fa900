package redis

import (
	"donations/internal/middleware"
	"donations/internal/service"
)

// Ensure the stores satisfy the interfaces their consumers declare.
var (
	_ service.PaymentLocker    = (*LockStore)(nil)
	_ middleware.ResponseCache = (*ResponseStore)(nil)
)
