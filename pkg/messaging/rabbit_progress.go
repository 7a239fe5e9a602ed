package messaging

import (
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitProgress publishes apply progress events to the configured topics.
// Publish failures are logged, never propagated: a broken event channel
// must not fail the apply run itself.
type RabbitProgress struct {
	Prefix     string
	connection *amqp.Connection
}

// NewRabbitProgress connects and declares the three progress topics up
// front, so notification consumers can bind before the first apply run.
func NewRabbitProgress(cfg RabbitConfig) (*RabbitProgress, error) {
	conn, err := amqp.DialConfig(cfg.Url, amqp.Config{
		Vhost:      cfg.VHost,
		Properties: amqp.NewConnectionProperties(),
	})
	if err != nil {
		return nil, err
	}
	r := &RabbitProgress{Prefix: cfg.Prefix, connection: conn}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	for _, topic := range []ChangeTopic{ApplyProgressTopic, ApplyCompletedTopic, ApplyErrorTopic} {
		if err := r.declareTopic(ch, topic); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *RabbitProgress) topicName(topic ChangeTopic) string {
	return fmt.Sprintf("%s_%s", r.Prefix, topic)
}

// declareTopic sets up a durable exchange and a matching durable queue so
// events published while no consumer is attached are not lost.
func (r *RabbitProgress) declareTopic(ch *amqp.Channel, topic ChangeTopic) error {
	name := r.topicName(topic)
	if err := ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return err
	}
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}

func (r *RabbitProgress) Progress(jobId string, current, total int) {
	r.send(ApplyProgressTopic, ProgressEvent{JobId: jobId, Current: current, Total: total})
}

func (r *RabbitProgress) Completed(jobId string, message string) {
	r.send(ApplyCompletedTopic, StatusEvent{JobId: jobId, Message: message})
}

func (r *RabbitProgress) Error(jobId string, message string) {
	r.send(ApplyErrorTopic, StatusEvent{JobId: jobId, Message: message})
}

func (r *RabbitProgress) send(topic ChangeTopic, event any) {
	if err := r.publish(topic, event); err != nil {
		log.Printf("Failed to publish %s event: %v", topic, err)
	}
}

func (r *RabbitProgress) publish(topic ChangeTopic, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ch, err := r.connection.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	name := r.topicName(topic)
	return ch.Publish(
		name,
		name,
		true, // mandatory
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (r *RabbitProgress) Close() error {
	return r.connection.Close()
}
