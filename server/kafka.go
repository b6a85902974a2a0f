package server

import (
	"encoding/json"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/voxcoarsen/vox"
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * vox.Kilo

// KafkaConfig describes kafka servers that receive an activity log of coarsening runs.
type KafkaConfig struct {
	TopicActivity string // if supplied, will be override topic for activity log
	Servers       []string
}

var topicSanitizer = regexp.MustCompile(`[^a-zA-Z0-9\._\-]+`)

// ActivityLog publishes JSON activity records to a kafka topic.  A nil *ActivityLog
// discards all records.
type ActivityLog struct {
	producer sarama.AsyncProducer
	topic    string
	wg       sync.WaitGroup
}

// NewActivityLog connects to the configured kafka servers.  If no servers are
// configured, a nil log is returned.
func NewActivityLog(kc KafkaConfig, hostID string) (*ActivityLog, error) {
	if len(kc.Servers) == 0 {
		return nil, nil
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	producer, err := sarama.NewAsyncProducer(kc.Servers, config)
	if err != nil {
		return nil, err
	}
	topic := kc.TopicActivity
	if topic == "" {
		topic = "voxcoarsen-activity-" + hostID
	}
	a := newActivityLog(producer, topic)
	vox.Infof("Kafka topic for voxcoarsen activity: %s\n", a.topic)
	return a, nil
}

func newActivityLog(producer sarama.AsyncProducer, topic string) *ActivityLog {
	a := &ActivityLog{
		producer: producer,
		topic:    topicSanitizer.ReplaceAllString(topic, "-"),
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for err := range producer.Errors() {
			vox.Errorf("error on kafka send: %v\n", err)
		}
	}()
	return a
}

// Topic returns the kafka topic receiving activity.
func (a *ActivityLog) Topic() string {
	if a == nil {
		return ""
	}
	return a.topic
}

// Log publishes an activity record.
func (a *ActivityLog) Log(activity map[string]interface{}) {
	if a == nil {
		return
	}
	jsonmsg, err := json.Marshal(activity)
	if err != nil {
		vox.Errorf("unable to marshal activity for kafka logging: %v\n", err)
		return
	}
	timeKey := sarama.StringEncoder(strconv.FormatInt(time.Now().UnixNano(), 10))
	a.producer.Input() <- &sarama.ProducerMessage{Topic: a.topic, Key: timeKey, Value: sarama.ByteEncoder(jsonmsg)}
}

// Close makes sure that the kafka queue is flushed before stopping.
func (a *ActivityLog) Close() error {
	if a == nil {
		return nil
	}
	err := a.producer.Close()
	a.wg.Wait()
	if err != nil {
		vox.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	vox.Infof("Successfully shut down kafka producer.\n")
	return nil
}
