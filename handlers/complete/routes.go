package complete

import (
	"github.com/gofiber/fiber/v2"

	gatewayService "github.com/MeowSalty/relay/services/gateway"
)

// SetupCompleteRoutes 配置原生补全相关的路由
func SetupCompleteRoutes(router fiber.Router, service gatewayService.Service) {
	handler := New(service)

	router.Post("/complete", handler.Complete)
}
