package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
)

// Command is the request half of the broker request/reply contract. The
// gateway produces commands onto a service's command topic; the owning
// service answers on ReplyTopic, echoing CorrelationID.
type Command struct {
	Name           string          `json:"command"`
	CorrelationID  string          `json:"correlationId"`
	ReplyTopic     string          `json:"replyTopic,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// Reply is the response half. StatusCode follows HTTP semantics so the
// gateway can relay it unchanged.
type Reply struct {
	CorrelationID string          `json:"correlationId"`
	StatusCode    int             `json:"statusCode"`
	Message       string          `json:"message,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ErrReplyTimeout is returned when no reply arrives before the context ends.
var ErrReplyTimeout = errors.New("timed out waiting for broker reply")

// Requester sends commands and matches replies by correlation ID. One
// Requester per process; the reply topic must be exclusive to it.
type Requester struct {
	writer     *kafka.Writer // dynamic, topic per message
	reader     *kafka.Reader
	replyTopic string

	mu      sync.Mutex
	pending map[string]chan Reply
	stopped bool
	wg      sync.WaitGroup
}

// NewRequester starts the background reply consumer immediately.
func NewRequester(brokers []string, replyTopic, groupID string) *Requester {
	r := &Requester{
		writer:     NewDynamicWriter(brokers),
		reader:     NewKafkaReader(brokers, replyTopic, groupID),
		replyTopic: replyTopic,
		pending:    make(map[string]chan Reply),
	}
	r.wg.Add(1)
	go r.consumeReplies()
	return r
}

// Do sends one command and blocks until the matching reply or ctx expiry.
func (r *Requester) Do(ctx context.Context, topic, name, idempotencyKey string, payload interface{}) (Reply, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Reply{}, err
	}
	cmd := Command{
		Name:           name,
		CorrelationID:  uuid.New().String(),
		ReplyTopic:     r.replyTopic,
		IdempotencyKey: idempotencyKey,
		Payload:        raw,
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return Reply{}, err
	}

	ch := make(chan Reply, 1)
	r.mu.Lock()
	r.pending[cmd.CorrelationID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, cmd.CorrelationID)
		r.mu.Unlock()
	}()

	if err := ProduceToTopic(ctx, r.writer, topic, []byte(cmd.CorrelationID), body); err != nil {
		return Reply{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return Reply{}, ErrReplyTimeout
	}
}

func (r *Requester) consumeReplies() {
	defer r.wg.Done()
	for {
		msg, err := r.reader.ReadMessage(context.Background())
		if err != nil {
			if r.isStopped() {
				return
			}
			logger.L().Error().Err(err).Str("topic", r.replyTopic).Msg("reply consumer read failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		var reply Reply
		if err := json.Unmarshal(msg.Value, &reply); err != nil {
			logger.L().Error().Err(err).Msg("malformed reply skipped")
			continue
		}
		r.mu.Lock()
		ch, ok := r.pending[reply.CorrelationID]
		r.mu.Unlock()
		if ok {
			ch <- reply
		}
	}
}

func (r *Requester) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Requester) Close() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.reader.Close()
	r.writer.Close()
	r.wg.Wait()
}

// CommandHandler processes one command and returns the reply to send.
type CommandHandler func(ctx context.Context, cmd Command) Reply

// Responder is the service side: it consumes a command topic, dispatches to
// the handler on a per-message goroutine, and produces the reply.
type Responder struct {
	reader  *kafka.Reader
	writer  *kafka.Writer // dynamic, reply topic per message
	handler CommandHandler

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewResponder(brokers []string, commandTopic, groupID string, handler CommandHandler) *Responder {
	return &Responder{
		reader:  NewKafkaReader(brokers, commandTopic, groupID),
		writer:  NewDynamicWriter(brokers),
		handler: handler,
	}
}

// Start runs the consume loop until Close or ctx cancellation.
func (r *Responder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			msg, err := r.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || r.isStopped() {
					return
				}
				logger.L().Error().Err(err).Msg("command consumer read failed, retrying")
				time.Sleep(time.Second)
				continue
			}
			go r.process(ctx, msg)
			if err := r.reader.CommitMessages(ctx, msg); err != nil {
				logger.L().Error().Err(err).Msg("commit failed")
			}
		}
	}()
}

func (r *Responder) process(parentCtx context.Context, msg kafka.Message) {
	ctx := ExtractTraceContext(parentCtx, msg.Headers)

	var cmd Command
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("malformed command skipped")
		return
	}

	reply := r.handler(ctx, cmd)
	reply.CorrelationID = cmd.CorrelationID

	if cmd.ReplyTopic == "" {
		return // fire-and-forget command
	}
	body, err := json.Marshal(reply)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("cannot marshal reply")
		return
	}
	if err := ProduceToTopic(ctx, r.writer, cmd.ReplyTopic, []byte(cmd.CorrelationID), body); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("topic", cmd.ReplyTopic).Msg("cannot produce reply")
	}
}

func (r *Responder) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Responder) Close() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.reader.Close()
	r.writer.Close()
	r.wg.Wait()
}
