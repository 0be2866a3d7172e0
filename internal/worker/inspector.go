package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

type QueueStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Scheduled int `json:"scheduled"`
	Retry     int `json:"retry"`
	Archived  int `json:"archived"`
}

type TaskInspector interface {
	QueueStats(ctx context.Context, queue string) (QueueStats, error)
}

type RedisTaskInspector struct {
	inspector *asynq.Inspector
}

func NewTaskInspector(redisOpt asynq.RedisClientOpt) *RedisTaskInspector {
	return &RedisTaskInspector{
		inspector: asynq.NewInspector(redisOpt),
	}
}

// QueueStats reports the task counts of a queue. A queue nobody has enqueued to yet is empty.
func (i *RedisTaskInspector) QueueStats(ctx context.Context, queue string) (QueueStats, error) {
	info, err := i.inspector.GetQueueInfo(queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return QueueStats{}, nil
		}
		return QueueStats{}, err
	}

	return QueueStats{
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

func (i *RedisTaskInspector) Close() error {
	return i.inspector.Close()
}
