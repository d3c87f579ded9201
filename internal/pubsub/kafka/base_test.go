package kafka

import (
	"testing"

	"github.com/Shopify/sarama"
	"github.com/counterpos/counterpos/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaramaConfig(t *testing.T) {
	cfg := &config.Configuration{Kafka: config.KafkaConfig{ClientID: "counterpos-test"}}

	sc := newSaramaConfig(cfg)
	require.NoError(t, sc.Validate())
	assert.Equal(t, "counterpos-test", sc.ClientID)
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.False(t, sc.Net.TLS.Enable)
	assert.False(t, sc.Net.SASL.Enable)
}

func TestNewSaramaConfig_SASL(t *testing.T) {
	cfg := &config.Configuration{Kafka: config.KafkaConfig{
		ClientID:      "counterpos-test",
		UseSASL:       true,
		SASLMechanism: sarama.SASLTypePlaintext,
		SASLUser:      "user",
		SASLPassword:  "secret",
	}}

	sc := newSaramaConfig(cfg)
	require.NoError(t, sc.Validate())
	assert.True(t, sc.Net.TLS.Enable)
	assert.True(t, sc.Net.SASL.Enable)
	assert.Equal(t, "user", sc.Net.SASL.User)
}
