package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKafkaConn struct {
	createFunc func(topics ...kafka.TopicConfig) error
	readFunc   func(topics ...string) ([]kafka.Partition, error)
	created    []kafka.TopicConfig
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	m.created = append(m.created, topics...)
	if m.createFunc != nil {
		return m.createFunc(topics...)
	}
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.readFunc != nil {
		return m.readFunc(topics...)
	}
	return nil, nil
}

func (m *mockKafkaConn) Close() error { return nil }

func TestEnsureTopic_CreatesMissing(t *testing.T) {
	conn := &mockKafkaConn{}
	m := NewTopicManagerWithConn(conn, nil)

	require.NoError(t, m.EnsureTopic(context.Background(), EventTopic("citoolbox.pipeline.events")))
	require.Len(t, conn.created, 1)
	assert.Equal(t, "citoolbox.pipeline.events", conn.created[0].Topic)
	assert.Equal(t, 3, conn.created[0].NumPartitions)
	assert.Equal(t, "retention.ms", conn.created[0].ConfigEntries[0].ConfigName)
}

func TestEnsureTopic_SkipsExisting(t *testing.T) {
	conn := &mockKafkaConn{readFunc: func(topics ...string) ([]kafka.Partition, error) {
		return []kafka.Partition{{Topic: topics[0]}}, nil
	}}
	m := NewTopicManagerWithConn(conn, nil)

	require.NoError(t, m.EnsureTopic(context.Background(), EventTopic("events")))
	assert.Empty(t, conn.created)
}

func TestEnsureTopic_Errors(t *testing.T) {
	conn := &mockKafkaConn{createFunc: func(...kafka.TopicConfig) error { return errors.New("not controller") }}
	m := NewTopicManagerWithConn(conn, nil)

	assert.Error(t, m.EnsureTopic(context.Background(), TopicConfig{}))
	assert.Error(t, m.EnsureTopic(context.Background(), TopicConfig{Name: "x"}))
	assert.ErrorContains(t, m.EnsureTopic(context.Background(), EventTopic("x")), "not controller")
}

func TestNewTopicManager_NoBrokers(t *testing.T) {
	_, err := NewTopicManager(nil, nil)
	assert.Error(t, err)
}
