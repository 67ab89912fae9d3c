package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/mocks"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

var sender = auth.Identity{UserID: "alice", Name: "Alice"}

func newMockPipeline(t *testing.T) (*Pipeline, *mocks.MockStore) {
	t.Helper()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	p := NewPipeline(NewDirectory(st), st, st, 10, nil)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p, st
}

func testConversation() *store.Conversation {
	return &store.Conversation{ID: "c1", Participants: []string{"alice", "bob"}}
}

func TestPipelineSendPersistsAndSummarizes(t *testing.T) {
	req := require.New(t)
	p, st := newMockPipeline(t)

	st.EXPECT().GetConversation(gomock.Any(), "c1").Return(testConversation(), nil)
	st.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, m *store.Message) error {
		req.Equal("c1", m.ConversationID)
		req.Equal("alice", m.SenderID)
		req.Equal("hi", m.Content)
		req.False(m.Read)
		req.NotEmpty(m.ID)
		return nil
	})
	st.EXPECT().UpdateConversationSummary(gomock.Any(), "c1", "hi", p.now()).Return(nil)

	msg, conv, err := p.Send(context.Background(), "c1", sender, " hi ")
	req.NoError(err)
	req.Equal("hi", msg.Content)
	req.Equal(Participant{ID: "alice", Name: "Alice"}, msg.Sender)
	req.Equal("hi", conv.LastMessage)
}

func TestPipelineValidationWritesNothing(t *testing.T) {
	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": " \t\n ",
		"too long":   strings.Repeat("x", 11),
	} {
		t.Run(name, func(t *testing.T) {
			p, _ := newMockPipeline(t)

			_, _, err := p.Send(context.Background(), "c1", sender, content)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPipelineLengthCountsRunes(t *testing.T) {
	p, st := newMockPipeline(t)

	st.EXPECT().GetConversation(gomock.Any(), "c1").Return(testConversation(), nil)
	st.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().UpdateConversationSummary(gomock.Any(), "c1", gomock.Any(), gomock.Any()).Return(nil)

	_, _, err := p.Send(context.Background(), "c1", sender, strings.Repeat("é", 10))
	require.NoError(t, err)
}

func TestPipelineUnauthorizedWritesNothing(t *testing.T) {
	t.Run("missing conversation", func(t *testing.T) {
		p, st := newMockPipeline(t)
		st.EXPECT().GetConversation(gomock.Any(), "c1").Return(nil, store.ErrNotFound)

		_, _, err := p.Send(context.Background(), "c1", sender, "hi")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not a participant", func(t *testing.T) {
		p, st := newMockPipeline(t)
		st.EXPECT().GetConversation(gomock.Any(), "c1").Return(&store.Conversation{ID: "c1", Participants: []string{"bob", "carol"}}, nil)

		_, _, err := p.Send(context.Background(), "c1", sender, "hi")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("lookup failure", func(t *testing.T) {
		p, st := newMockPipeline(t)
		st.EXPECT().GetConversation(gomock.Any(), "c1").Return(nil, errors.New("disk on fire"))

		_, _, err := p.Send(context.Background(), "c1", sender, "hi")
		require.ErrorIs(t, err, ErrPersistence)
	})
}

func TestPipelineInsertFailure(t *testing.T) {
	p, st := newMockPipeline(t)

	st.EXPECT().GetConversation(gomock.Any(), "c1").Return(testConversation(), nil)
	st.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(errors.New("constraint"))

	_, _, err := p.Send(context.Background(), "c1", sender, "hi")
	require.ErrorIs(t, err, ErrPersistence)
	require.Equal(t, ErrCodeInternal, ToCoreError(err).Code)
}

func TestPipelineSummaryFailureStillSucceeds(t *testing.T) {
	req := require.New(t)
	p, st := newMockPipeline(t)

	st.EXPECT().GetConversation(gomock.Any(), "c1").Return(testConversation(), nil)
	st.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().UpdateConversationSummary(gomock.Any(), "c1", "hi", gomock.Any()).Return(errors.New("timeout"))

	msg, conv, err := p.Send(context.Background(), "c1", sender, "hi")
	req.NoError(err)
	req.Equal("hi", msg.Content)
	req.Empty(conv.LastMessage)
}

func TestPipelineTimestampsKeepMillisecondPrecision(t *testing.T) {
	req := require.New(t)
	st := mocks.NewMockStore(gomock.NewController(t))
	p := NewPipeline(NewDirectory(st), st, st, 0, nil)

	st.EXPECT().GetConversation(gomock.Any(), "c1").Return(testConversation(), nil)
	st.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().UpdateConversationSummary(gomock.Any(), "c1", "hi", gomock.Any()).Return(nil)

	msg, _, err := p.Send(context.Background(), "c1", sender, "hi")
	req.NoError(err)
	req.Equal(time.UTC, msg.CreatedAt.Location())
	req.True(msg.CreatedAt.Equal(msg.CreatedAt.Truncate(time.Millisecond)))
}
