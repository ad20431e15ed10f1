package worker

import (
	"context"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/rabbitmq/queue"
)

type eventQueue interface {
	Consume(out chan<- queue.EventMessage, strategy retry.Strategy) error
}

type messageHandler interface {
	HandleMessage(ctx context.Context, msg queue.EventMessage, strategy retry.Strategy)
}

// Dispatcher consumes event dispatch messages and hands them to the handler
// on a pool of workers.
type Dispatcher struct {
	queue   eventQueue
	handler messageHandler
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(q eventQueue, h messageHandler) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		handler: h,
	}
}

// Run consumes messages until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, strategy retry.Strategy, workerCount int) {
	msgChan := make(chan queue.EventMessage)

	go func() {
		if err := d.queue.Consume(msgChan, strategy); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to consume messages")
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(id int) {
			zlog.Logger.Printf("worker-%d started", id)

			for {
				select {
				case <-ctx.Done():
					zlog.Logger.Printf("worker-%d shutting down", id)
					return
				case msg := <-msgChan:
					d.handler.HandleMessage(ctx, msg, strategy)
				}
			}
		}(i)
	}

	<-ctx.Done()
	zlog.Logger.Print("dispatcher stopped")
}
