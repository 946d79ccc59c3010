package queue

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/streadway/amqp"
	"gopkg.in/yaml.v2"
)

type rabbitmq struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitMQ(url string) (Channel, error) {
	conn, err := amqp.Dial(url)

	if err != nil {
		return nil, errors.Wrap(err, "unable to dial rabbitmq")
	}

	ch, err := conn.Channel()

	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "unable to open rabbitmq channel")
	}

	if err = ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "unable to set rabbitmq qos")
	}

	return &rabbitmq{conn: conn, ch: ch}, nil
}

func (r *rabbitmq) CreateQueue(queue string) error {
	if _, err := r.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "unable to declare queue '%s'", queue)
	}

	return nil
}

func (r *rabbitmq) Consume(queue string, data interface{}) (bool, Delivery, error) {
	msg, ok, err := r.ch.Get(queue, false)

	if err != nil {
		return false, nil, errors.Wrapf(err, "unable to get message from '%s'", queue)
	}

	if !ok {
		return false, nil, nil
	}

	if err = yaml.Unmarshal(msg.Body, data); err != nil {
		_ = msg.Nack(false, false)
		return false, nil, errors.Wrapf(err, "unable to decode message '%s' from '%s'", msg.MessageId, queue)
	}

	return true, &rabbitmqDelivery{msg: msg}, nil
}

func (r *rabbitmq) Publish(queue string, data interface{}) error {
	body, err := yaml.Marshal(data)

	if err != nil {
		return errors.Wrap(err, "unable to encode message")
	}

	err = r.ch.Publish("", queue, false, false, amqp.Publishing{
		MessageId:    uuid.NewString(),
		ContentType:  "text/yaml",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})

	if err != nil {
		return errors.Wrapf(err, "unable to publish to '%s'", queue)
	}

	return nil
}

func (r *rabbitmq) Close() error {
	if err := r.ch.Close(); err != nil {
		_ = r.conn.Close()
		return errors.Wrap(err, "unable to close rabbitmq channel")
	}

	return r.conn.Close()
}
