package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencare/careplan/pkg/events"
	"github.com/opencare/careplan/pkg/otelhelper"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	tracer        trace.Tracer
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		tracer:        otel.Tracer("careplan.eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event any

			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			switch eventType {
			case events.CarePlanCreatedEvent:
				event = &events.CarePlanCreated{}
			case events.CarePlanUpdatedEvent:
				event = &events.CarePlanUpdated{}
			case events.CarePlanDeletedEvent:
				event = &events.CarePlanDeleted{}
			case events.BlockCreatedEvent:
				event = &events.BlockCreated{}
			case events.BlockUpdatedEvent:
				event = &events.BlockUpdated{}
			case events.BlockDeletedEvent:
				event = &events.BlockDeleted{}
			case events.BlocksLinkedEvent:
				event = &events.BlocksLinked{}
			case events.RunStartedEvent:
				event = &events.RunStarted{}
			case events.RunAdvancedEvent:
				event = &events.RunAdvanced{}
			case events.RunCompletedEvent:
				event = &events.RunCompleted{}
			case events.RunStoppedEvent:
				event = &events.RunStopped{}
			case events.ReminderDueEvent:
				event = &events.ReminderDue{}
			default:
				msg.Nack()

				continue
			}

			msgCtx, span := otelhelper.StartSpan(ctx, eb.tracer, "eventbus consume",
				attribute.String(otelhelper.EventIDKey, msg.UUID),
				attribute.String("event.type", string(eventType)),
			)

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			err = handler(msgCtx, event)
			if err != nil {
				otelhelper.SetError(span, err)
				span.End()
				msg.Nack()

				continue
			}

			span.End()
			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
