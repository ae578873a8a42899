package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nodalsync/engine/pkg/protocol"
)

func TestEventCodes_MatchTheStableWireContract(t *testing.T) {
	assert.Equal(t, protocol.DocumentCreated, DocumentEvent{Kind: DocumentCreated}.Code())
	assert.Equal(t, protocol.DocumentUpdated, DocumentEvent{Kind: DocumentUpdated}.Code())
	assert.Equal(t, protocol.DocumentDeleted, DocumentEvent{Kind: DocumentDeleted}.Code())

	assert.Equal(t, protocol.SyncStarted, SyncEvent{Kind: SyncStarted}.Code())
	assert.Equal(t, protocol.SyncCompleted, SyncEvent{Kind: SyncCompleted}.Code())

	assert.Equal(t, protocol.SyncError, ErrorEvent{}.Code())

	assert.Equal(t, protocol.ConflictDetected, ConflictEvent{}.Code())

	assert.Equal(t, protocol.ConnectionLost, ConnectionEvent{Kind: ConnectionLost}.Code())
	assert.Equal(t, protocol.ConnectionAttempted, ConnectionEvent{Kind: ConnectionAttempted}.Code())
	assert.Equal(t, protocol.ConnectionSucceeded, ConnectionEvent{Kind: ConnectionSucceeded}.Code())
}
