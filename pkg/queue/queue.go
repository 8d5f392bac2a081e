package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// TaskTypePaperProcess 论文处理任务类型
const TaskTypePaperProcess = "paper:process"

// ErrOverloaded 在途任务数达到上限
var ErrOverloaded = errors.New("too many papers in flight")

// Handler 执行一次流水线，错误已由处理方写入任务状态
type Handler func(ctx context.Context, taskID string) error

// Dispatcher 上传时提交任务，不等待执行完成
type Dispatcher interface {
	Submit(ctx context.Context, taskID string) error
	// InFlight 排队中与执行中的任务数
	InFlight(ctx context.Context) (int, error)
	Close() error
}

// Payload 队列中的任务内容，只携带任务 ID
type Payload struct {
	TaskID string `json:"taskId"`
}

func EncodePayload(taskID string) ([]byte, error) {
	if taskID == "" {
		return nil, errors.New("empty task id")
	}
	return json.Marshal(Payload{TaskID: taskID})
}

func DecodePayload(data []byte) (string, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.TaskID == "" {
		return "", errors.New("payload has no task id")
	}
	return p.TaskID, nil
}
