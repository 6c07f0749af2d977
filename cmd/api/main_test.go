package main

import (
	"testing"

	"github.com/sjc1990app/server/internal/config"
	"github.com/sjc1990app/server/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewNotifier_requiresBrokersOutsideDevMode(t *testing.T) {
	_, _, err := newNotifier(&config.Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewNotifier_devModeLogsOnly(t *testing.T) {
	n, closeFn, err := newNotifier(&config.Config{DevMode: true}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &notify.LogNotifier{}, n)
}

func TestNewNotifier_kafka(t *testing.T) {
	n, closeFn, err := newNotifier(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "sms"}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &notify.KafkaNotifier{}, n)
}
