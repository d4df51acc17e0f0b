package main

import (
	"flag"
	"log"

	"SeqNet/pkg/core/services"
)

func main() {
	port := flag.String("port", "8080", "监听端口")
	flag.Parse()

	service := services.NewService(*port)
	if err := service.Start(); err != nil {
		log.Fatalf("服务启动失败: %v", err)
	}
}
