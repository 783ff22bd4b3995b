package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"MsgVault/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	bodies [][]byte
	err    error
}

func (p *fakePublisher) PublishTask(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

func TestQueueOrphanReporterPublishes(t *testing.T) {
	pub := &fakePublisher{}
	r := NewQueueOrphanReporter(pub)
	o := service.Orphan{OwnerID: 3, FileID: "p1", PostID: "p1", ChunksUploaded: 2, Reason: "boom", DetectedAt: time.Unix(100, 0).UTC()}

	require.NoError(t, r.ReportOrphan(context.Background(), o))
	require.Len(t, pub.bodies, 1)

	msg, err := DecodeOrphanMessage(pub.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, o, msg.Orphan)
	assert.Zero(t, msg.Attempt)
}

func TestQueueOrphanReporterFallsBackToLog(t *testing.T) {
	r := NewQueueOrphanReporter(&fakePublisher{err: errors.New("broker down")})
	assert.NoError(t, r.ReportOrphan(context.Background(), service.Orphan{FileID: "p1"}))
}
