package services

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"SeqNet/pkg/core/models"
	"SeqNet/pkg/network"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TrainRequest 训练请求
type TrainRequest struct {
	Inputs  [][]float64 `json:"inputs" binding:"required"`
	Targets [][]float64 `json:"targets" binding:"required"`
	models.TrainOptions
}

// PredictRequest 预测请求
type PredictRequest struct {
	Inputs [][]float64 `json:"inputs" binding:"required"`
}

// errorStatus 将错误映射为HTTP状态码
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNonFinite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, network.ErrShapeMismatch),
		errors.Is(err, network.ErrInvalidTopology),
		errors.Is(err, network.ErrInvalidConfig),
		errors.Is(err, network.ErrEmptyDataset):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(ctx *gin.Context, err error) {
	ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

// statusHandler 服务状态
func (s *Service) statusHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":   "running",
		"models":   s.Models.Count(),
		"uptime":   time.Since(s.startTime).String(),
		"local_ip": s.HTTPServer.GetLocalIP(),
	})
}

// createModelHandler 创建模型
func (s *Service) createModelHandler(ctx *gin.Context) {
	var req models.CreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	model, err := s.Models.Create(req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, model.Info())
}

// listModelsHandler 列出所有模型
func (s *Service) listModelsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"models": s.Models.List()})
}

// getModelHandler 获取模型信息
func (s *Service) getModelHandler(ctx *gin.Context) {
	model, err := s.Models.Get(ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, model.Info())
}

// deleteModelHandler 删除模型
func (s *Service) deleteModelHandler(ctx *gin.Context) {
	if err := s.Models.Delete(ctx.Param("id")); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// trainHandler 同步训练，返回每轮的平均损失
func (s *Service) trainHandler(ctx *gin.Context) {
	var req TrainRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	id := ctx.Param("id")
	start := time.Now()
	history, err := s.Models.Train(id, req.Inputs, req.Targets, req.TrainOptions)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"id":           id,
		"loss_history": history,
		"final_loss":   history[len(history)-1],
		"elapsed":      time.Since(start).String(),
	})
}

// predictHandler 预测
func (s *Service) predictHandler(ctx *gin.Context) {
	var req PredictRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	outputs, err := s.Models.Predict(ctx.Param("id"), req.Inputs)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"outputs": outputs})
}

// progressHandler 通过websocket推送训练汇报，直到模型被删除或客户端断开
func (s *Service) progressHandler(ctx *gin.Context) {
	model, err := s.Models.Get(ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	// 先订阅再升级，避免丢失升级期间的汇报
	reports, unsubscribe := model.Hub.Subscribe()
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		fmt.Printf("websocket升级失败: %v\n", err)
		return
	}
	defer conn.Close()

	// 读取循环用于感知客户端关闭
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case report, ok := <-reports:
			if !ok {
				closeWith(conn, websocket.CloseNormalClosure, "model deleted")
				return
			}
			if math.IsNaN(report.MeanLoss) || math.IsInf(report.MeanLoss, 0) {
				closeWith(conn, websocket.CloseInternalServerErr,
					fmt.Sprintf("第 %d 轮平均损失为 %v", report.Epoch, report.MeanLoss))
				return
			}
			if err := conn.WriteJSON(report); err != nil {
				closeWith(conn, websocket.CloseInternalServerErr, err.Error())
				return
			}
		case <-closed:
			return
		}
	}
}

// closeWith 发送带原因的关闭帧，原因超过控制帧上限时截断
func closeWith(conn *websocket.Conn, code int, reason string) {
	if len(reason) > 120 {
		reason = strings.ToValidUTF8(reason[:120], "")
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
