package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestPublishDocumentEvent(t *testing.T) {
	conn := &fakeConn{}
	p := &NotificationPublisher{conn: conn, prefix: "approvals", log: zerolog.Nop()}
	doc := &domain.Document{ID: "doc-1", Status: domain.StatusInProgress, Version: 2}

	p.PublishDocumentEvent(context.Background(), service.EventApprovalRequired, doc, "E99", []string{"E10"}, map[string]any{"step_order": 1})

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "approvals.approval_required", conn.subjects[0])

	var ev NotificationEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &ev))
	assert.Equal(t, "doc-1", ev.ResourceID)
	assert.Equal(t, []string{"E10"}, ev.Recipients)
	assert.True(t, ev.IsActionable)
	assert.Equal(t, int64(2), ev.Version)
}

func TestPublishDocumentEventNonFatal(t *testing.T) {
	doc := &domain.Document{ID: "doc-1"}

	failing := &NotificationPublisher{conn: &fakeConn{err: errors.New("nats down")}, prefix: "approvals", log: zerolog.Nop()}
	assert.NotPanics(t, func() {
		failing.PublishDocumentEvent(context.Background(), service.EventDocumentApproved, doc, "E20", []string{"E99"}, nil)
	})

	disabled := NewNotificationPublisher(nil, "approvals", zerolog.Nop())
	assert.NotPanics(t, func() {
		disabled.PublishDocumentEvent(context.Background(), service.EventDocumentApproved, doc, "E20", []string{"E99"}, nil)
	})

	conn := &fakeConn{}
	noRecipients := &NotificationPublisher{conn: conn, prefix: "approvals", log: zerolog.Nop()}
	noRecipients.PublishDocumentEvent(context.Background(), service.EventDocumentApproved, doc, "E20", nil, nil)
	assert.Empty(t, conn.subjects)
}
