package services

import (
	"net/http"
	"time"

	"SeqNet/pkg/core/models"
	"SeqNet/pkg/core/server"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Service 模型训练服务
type Service struct {
	// 模型注册表
	Models *models.Manager

	// HTTP服务器
	HTTPServer *server.HTTPServer

	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewService 创建服务并注册路由
func NewService(port string) *Service {
	s := &Service{
		Models:     models.NewManager(),
		HTTPServer: server.NewHTTPServer(port),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes 设置HTTP路由
func (s *Service) setupRoutes() {
	router := s.HTTPServer.GetRouter()

	router.GET("/status", s.statusHandler)

	// 模型管理
	router.POST("/models", s.createModelHandler)
	router.GET("/models", s.listModelsHandler)
	router.GET("/models/:id", s.getModelHandler)
	router.DELETE("/models/:id", s.deleteModelHandler)

	// 训练和推理
	router.POST("/models/:id/train", s.trainHandler)
	router.POST("/models/:id/predict", s.predictHandler)
	router.GET("/models/:id/progress", s.progressHandler)
}

// Router 返回路由引擎
func (s *Service) Router() *gin.Engine {
	return s.HTTPServer.GetRouter()
}

// Start 启动服务
func (s *Service) Start() error {
	return s.HTTPServer.Start()
}
