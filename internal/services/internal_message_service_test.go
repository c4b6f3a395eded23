package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"coreops/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalMessageService_SendBroadcastsToOthers(t *testing.T) {
	db := newTestDB(t)
	hub := newTestHub(50)
	svc := NewInternalMessageService(db, hub, 100, quietLogger())

	senderTab, peer := &fakeSocket{}, &fakeSocket{}
	hub.Connect(1, 10, "Sam", senderTab)
	hub.Connect(1, 11, "Pat", peer)

	dto, err := svc.Send(context.Background(), Sender{WorkspaceID: 1, UserID: 10, Name: "Sam"}, "  hello team  ")
	require.NoError(t, err)
	assert.Equal(t, "hello team", dto.Content)
	assert.Equal(t, "Sam", dto.SenderName)
	assert.NotZero(t, dto.ID)

	assert.Empty(t, senderTab.received())
	require.Len(t, peer.received(), 1)
	evt := peer.received()[0]
	assert.Equal(t, EventNewMessage, evt.Type)
	assert.Equal(t, *dto, evt.Payload)

	var count int64
	require.NoError(t, db.Model(&models.InternalMessage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInternalMessageService_Validation(t *testing.T) {
	svc := NewInternalMessageService(newTestDB(t), newTestHub(50), 10, quietLogger())
	from := Sender{WorkspaceID: 1, UserID: 1, Name: "A"}

	_, err := svc.Send(context.Background(), from, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Send(context.Background(), from, strings.Repeat("x", 11))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	// length counts characters, not bytes
	_, err = svc.Send(context.Background(), from, strings.Repeat("é", 10))
	assert.NoError(t, err)
}

func TestInternalMessageService_RateLimited(t *testing.T) {
	db := newTestDB(t)
	svc := NewInternalMessageService(db, newTestHub(50), 0, quietLogger())
	from := Sender{WorkspaceID: 1, UserID: 1, Name: "A"}

	for i := 0; i < 5; i++ {
		_, err := svc.Send(context.Background(), from, "hi")
		require.NoError(t, err)
	}
	_, err := svc.Send(context.Background(), from, "hi")
	assert.ErrorIs(t, err, ErrRateLimited)

	var count int64
	require.NoError(t, db.Model(&models.InternalMessage{}).Count(&count).Error)
	assert.Equal(t, int64(5), count, "rejected message is not stored")
}

func TestInternalMessageService_ListChronological(t *testing.T) {
	db := newTestDB(t)
	svc := NewInternalMessageService(db, newTestHub(50), 0, quietLogger())
	base := time.Now().Add(-time.Hour)

	for i, content := range []string{"first", "second", "third"} {
		require.NoError(t, db.Create(&models.InternalMessage{
			WorkspaceID: 1, SenderID: 1, Content: content, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	require.NoError(t, db.Create(&models.InternalMessage{WorkspaceID: 2, SenderID: 1, Content: "elsewhere"}).Error)

	msgs, err := svc.List(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Content)
	assert.Equal(t, "third", msgs[1].Content)
	assert.Equal(t, "Unknown", msgs[0].SenderName)

	msgs, err = svc.List(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}
