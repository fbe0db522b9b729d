package main

import (
	"github.com/MeowSalty/relay/config"
	"github.com/MeowSalty/relay/server"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig()

	// 启动服务器
	server.Run(cfg)
}
