package provider

import (
	"github.com/gofiber/fiber/v2"

	gwtypes "github.com/MeowSalty/relay/gateway/types"
)

// SetupProviderRoutes 配置路由目录查询相关的 API 路由
func SetupProviderRoutes(router fiber.Router, catalog *gwtypes.Catalog) {
	handler := NewHandler(catalog)

	router.Get("/providers", handler.GetProviders)
	router.Get("/models", handler.GetModels)
}
