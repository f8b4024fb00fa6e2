package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawcc/trumpsword/internal/domain"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	flushes  int
	drained  bool
	err      error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error {
	c.flushes++
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSPublisher_Publish(t *testing.T) {
	fc := &fakeConn{}
	p := &NATSPublisher{nc: fc, logger: slog.Default()}
	at := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

	e := domain.Event{ID: "evt-1", ExternalID: "bill-1", Type: domain.TypeLegislative,
		Source: domain.SourceCongress, Title: "H.R. 1"}
	require.NoError(t, p.Publish(context.Background(), SubjectEventSyncFailed,
		NewNotification(e, errors.New("HTTP 502"), at)))

	require.Equal(t, []string{SubjectEventSyncFailed}, fc.subjects)
	assert.Equal(t, 1, fc.flushes)

	var got Notification
	require.NoError(t, json.Unmarshal(fc.payloads[0], &got))
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, "HTTP 502", got.Error)
	assert.True(t, at.Equal(got.At))

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	p := &NATSPublisher{nc: &fakeConn{err: errors.New("connection closed")}, logger: slog.Default()}

	err := p.Publish(context.Background(), SubjectEventCreated, Notification{EventID: "evt-1"})
	assert.ErrorContains(t, err, "connection closed")
}

func TestNewNotification_OmitsEmptyError(t *testing.T) {
	n := NewNotification(domain.Event{ID: "evt-1"}, nil, time.Time{})
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), SubjectEventCreated, Notification{}))
	assert.NoError(t, p.Close())
}
