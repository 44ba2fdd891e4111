package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/ticket-workflow/internal/config"
)

func TestWorkflowDefaultsPerField(t *testing.T) {
	assert.Equal(t, config.DefaultWorkflow(), workflowWithDefaults(config.WorkflowConfig{}))

	got := workflowWithDefaults(config.WorkflowConfig{
		ConflictRetries:    3,
		AutoCloseAfter:     48 * time.Hour,
		AutoCloseBatchSize: 10,
	})
	def := config.DefaultWorkflow()
	assert.Equal(t, def.OperationTimeout, got.OperationTimeout)
	assert.Equal(t, def.NotificationTimeout, got.NotificationTimeout)
	assert.Equal(t, 3, got.ConflictRetries)
	assert.Equal(t, 48*time.Hour, got.AutoCloseAfter)
	assert.Equal(t, 10, got.AutoCloseBatchSize)
	assert.Equal(t, def.AutoCloseInterval, got.AutoCloseInterval)

	noRetry := workflowWithDefaults(config.WorkflowConfig{OperationTimeout: time.Second})
	assert.Zero(t, noRetry.ConflictRetries)
	assert.Equal(t, time.Second, noRetry.OperationTimeout)
}
