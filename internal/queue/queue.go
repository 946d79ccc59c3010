package queue

const (
	RequestQueue  = "conversion.request"
	ResponseQueue = "conversion.response"
	ProgressQueue = "conversion.progress"
)

type Channel interface {
	// Consume fetches one message into data. ok is false when the queue is empty.
	Consume(queue string, data interface{}) (ok bool, delivery Delivery, err error)
	Publish(queue string, data interface{}) (err error)
	CreateQueue(queue string) (err error)
	Close() error
}

type Delivery interface {
	Ack() error
	Nack(requeue bool) error
}
