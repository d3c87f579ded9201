package kafka

import (
	"crypto/tls"
	"time"

	"github.com/Shopify/sarama"
	"github.com/counterpos/counterpos/internal/config"
)

// newSaramaConfig builds the producer and consumer settings for domain events.
// Events are keyed by tenant, so one tenant's events land on one partition in
// publish order. The producer is idempotent so broker retries do not
// duplicate an order.paid event.
func newSaramaConfig(cfg *config.Configuration) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.ClientID = cfg.Kafka.ClientID

	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Idempotent = true
	sc.Producer.Retry.Max = 5
	sc.Producer.Timeout = 5 * time.Second
	sc.Net.MaxOpenRequests = 1

	// sinks are idempotent, so replaying from the oldest offset is safe
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = time.Second

	if cfg.Kafka.TLS || cfg.Kafka.UseSASL {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.Kafka.UseSASL {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLMechanism(cfg.Kafka.SASLMechanism)
		sc.Net.SASL.User = cfg.Kafka.SASLUser
		sc.Net.SASL.Password = cfg.Kafka.SASLPassword
	}

	return sc
}
