package rmq

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"text2phenotype.com/recognizer/logger"
)

// ConfigurationsHeader restricts a recognizer task to the listed configurations.
// The worker echoes it on the completion message it sends to the sequencer.
const ConfigurationsHeader = "recognizer_configurations"

type Config struct {
	Host                    string `envconfig:"MDL_COMN_RMQ_HOST" required:"true"`
	Port                    int    `envconfig:"MDL_COMN_RMQ_PORT" required:"true"`
	Username                string `envconfig:"MDL_COMN_RMQ_USERNAME" required:"true"`
	Password                string `envconfig:"MDL_COMN_RMQ_PASSWORD" required:"true"`
	Vhost                   string `envconfig:"MDL_COMN_RMQ_VHOST" default:"/"`
	Exchange                string `envconfig:"MDL_COMN_RMQ_DEFAULT_EXCHANGE" default:"text2phenotype-default-exchange"`
	MaxParallelRequestCount int    `envconfig:"REC_MQ_MAX_PARALLEL_REQUESTS" default:"5"`
	RecognizerTaskQueue     string `envconfig:"MDL_COMN_RECOGNIZER_TASK_QUEUE" required:"true"`
	SequencerTaskQueue      string `envconfig:"MDL_COMN_SEQUENCER_TASK_QUEUE" required:"true"`
}

func (config Config) URI() amqp.URI {
	return amqp.URI{
		Scheme:   "amqp",
		Host:     config.Host,
		Port:     config.Port,
		Username: config.Username,
		Password: config.Password,
		Vhost:    config.Vhost,
	}
}

type Client struct {
	Deliveries     <-chan amqp.Delivery
	ReqChanErrors  <-chan *amqp.Error
	RespChanErrors <-chan *amqp.Error
	config         Config
	reqConn        *amqp.Connection
	respConn       *amqp.Connection
	respChannel    *amqp.Channel
	recLogger      *zerolog.Logger
}

// NewClient opens one connection for consuming recognizer tasks and another for
// publishing completions, so a blocked publisher never stalls consumption.
func NewClient() (*Client, error) {
	recLogger := logger.NewLogger("RMQ client")
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		recLogger.Error().Err(err).Msg("Could not read env config")
		return nil, err
	}

	uri := config.URI().String()
	respConn, respChannel, err := dial(uri)
	if err != nil {
		return nil, fmt.Errorf("publisher connection: %w", err)
	}
	reqConn, reqChannel, err := dial(uri)
	if err != nil {
		_ = respConn.Close()
		return nil, fmt.Errorf("consumer connection: %w", err)
	}
	deliveries, err := consumeRecognizerTasks(reqChannel, config)
	if err != nil {
		_ = respConn.Close()
		_ = reqConn.Close()
		return nil, err
	}
	recLogger.Info().
		Str("queue", config.RecognizerTaskQueue).
		Int("prefetch", config.MaxParallelRequestCount).
		Msg("Consuming recognizer tasks")

	return &Client{
		Deliveries:     deliveries,
		ReqChanErrors:  reqChannel.NotifyClose(make(chan *amqp.Error)),
		RespChanErrors: respChannel.NotifyClose(make(chan *amqp.Error)),
		config:         config,
		reqConn:        reqConn,
		respConn:       respConn,
		respChannel:    respChannel,
		recLogger:      &recLogger,
	}, nil
}

func consumeRecognizerTasks(ch *amqp.Channel, config Config) (<-chan amqp.Delivery, error) {
	q, err := ch.QueueDeclarePassive(
		config.RecognizerTaskQueue, // name
		true,                       // durable
		false,                      // delete when unused
		false,                      // exclusive
		false,                      // no-wait
		nil,                        // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare %s: %w", config.RecognizerTaskQueue, err)
	}
	if err = ch.QueueBind(q.Name, q.Name, config.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind %s: %w", q.Name, err)
	}
	// scoring is CPU bound, prefetch bounds how many test sets run at once
	if err = ch.Qos(config.MaxParallelRequestCount, 0, false); err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume deliveries: %w", err)
	}
	return deliveries, nil
}

func (c *Client) SendMessageToSequencer(msg amqp.Publishing) error {
	return c.respChannel.Publish(
		c.config.Exchange,
		c.config.SequencerTaskQueue,
		false,
		false,
		msg)
}

func (c *Client) Close() {
	_ = c.reqConn.Close()
	_ = c.respConn.Close()
}

// Configurations reads ConfigurationsHeader from a delivery. The header may be an
// array of strings or a single comma separated string; blanks are dropped.
func Configurations(headers amqp.Table) []string {
	var names []string
	switch value := headers[ConfigurationsHeader].(type) {
	case string:
		for _, name := range strings.Split(value, ",") {
			names = appendName(names, name)
		}
	case []interface{}:
		for _, item := range value {
			if name, ok := item.(string); ok {
				names = appendName(names, name)
			}
		}
	}
	return names
}

func appendName(names []string, name string) []string {
	if name = strings.TrimSpace(name); name != "" {
		names = append(names, name)
	}
	return names
}

// CompletionPublishing builds the persistent message telling the sequencer that a
// recognizer task finished, carrying the configurations the task ran with.
func CompletionPublishing(body []byte, contentType string, configurations []string) amqp.Publishing {
	msg := amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if len(configurations) > 0 {
		names := make([]interface{}, len(configurations))
		for i, name := range configurations {
			names[i] = name
		}
		msg.Headers = amqp.Table{ConfigurationsHeader: names}
	}
	return msg
}

func dial(uri string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
