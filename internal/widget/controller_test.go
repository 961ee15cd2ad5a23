package widget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/snapquestion/internal/answer"
)

type fakeAnswerer struct {
	mu     sync.Mutex
	reqs   []answer.Request
	ctxErr []error

	gate  chan struct{}
	resp  *answer.Response
	err   error
	panic any
}

func (f *fakeAnswerer) Answer(ctx context.Context, req answer.Request) (*answer.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.ctxErr = append(f.ctxErr, ctx.Err())
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.panic != nil {
		panic(f.panic)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &answer.Response{Answer: "ok"}, nil
}

func (f *fakeAnswerer) requests() []answer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]answer.Request(nil), f.reqs...)
}

func ptr[T any](v T) *T { return &v }

func newTestController(t *testing.T, f Answerer, opts ...Option) *Controller {
	t.Helper()
	c, err := NewController(DefaultEmbedConfig(), f, opts...)
	require.NoError(t, err)
	return c
}

func settle(t *testing.T, r *Receipt) Turn {
	t.Helper()
	select {
	case turn, ok := <-r.Done:
		require.True(t, ok, "receipt closed without a turn")
		return turn
	case <-time.After(2 * time.Second):
		t.Fatal("request never settled")
		return Turn{}
	}
}

func TestSubmit_AppendsUserThenAssistant(t *testing.T) {
	f := &fakeAnswerer{}
	c := newTestController(t, f)

	before := len(c.Snapshot().Turns)
	r, err := c.Submit(context.Background(), "  How do I reset the filter?  ")
	require.NoError(t, err)
	require.Equal(t, "How do I reset the filter?", r.User.Text)

	reply := settle(t, r)
	_, open := <-r.Done
	require.False(t, open, "done must close after the single turn")

	s := c.Snapshot()
	require.Len(t, s.Turns, before+2)
	require.Equal(t, SenderUser, s.Turns[0].Sender)
	require.Equal(t, SenderAssistant, s.Turns[1].Sender)
	require.Equal(t, "ok", s.Turns[1].Text)
	require.Equal(t, reply.ID, s.Turns[1].ID)
	require.Less(t, s.Turns[0].ID, s.Turns[1].ID)
	require.False(t, s.Pending)
}

func TestSubmit_SendsTenantAndConversation(t *testing.T) {
	f := &fakeAnswerer{}
	c, err := NewController(EmbedConfig{TenantID: ""}, f)
	require.NoError(t, err)

	r, err := c.Submit(context.Background(), "hi")
	require.NoError(t, err)
	settle(t, r)

	reqs := f.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, DefaultTenantID, reqs[0].TenantID)
	require.Equal(t, "hi", reqs[0].QueryText)
	require.NotNil(t, reqs[0].ConversationID)
	require.Equal(t, c.ConversationID(), *reqs[0].ConversationID)
	require.Nil(t, reqs[0].ImageURL)
}

func TestSubmit_RejectsEmptyInput(t *testing.T) {
	f := &fakeAnswerer{}
	c := newTestController(t, f)

	for _, in := range []string{"", "   ", "\n\t "} {
		r, err := c.Submit(context.Background(), in)
		require.Nil(t, r)
		require.ErrorIs(t, err, ErrEmptyInput)
		require.True(t, IsRejected(err))
	}

	s := c.Snapshot()
	require.Empty(t, s.Turns)
	require.False(t, s.Pending)
	require.Empty(t, f.requests())
}

func TestSubmit_RejectsWhilePending(t *testing.T) {
	f := &fakeAnswerer{gate: make(chan struct{})}
	c := newTestController(t, f)

	r, err := c.Submit(context.Background(), "first")
	require.NoError(t, err)
	require.True(t, c.Pending())

	again, err := c.Submit(context.Background(), "second")
	require.Nil(t, again)
	require.ErrorIs(t, err, ErrPending)
	require.True(t, IsRejected(err))

	s := c.Snapshot()
	require.Len(t, s.Turns, 1)
	require.True(t, s.Pending)

	close(f.gate)
	settle(t, r)
	require.False(t, c.Pending())
	require.Len(t, c.Snapshot().Turns, 2)
	require.Len(t, f.requests(), 1)

	// idle again: next send accepted
	r, err = c.Submit(context.Background(), "third")
	require.NoError(t, err)
	settle(t, r)
	require.Len(t, c.Snapshot().Turns, 4)
}

func TestSubmit_NetworkFailureAppendsOneErrorTurn(t *testing.T) {
	f := &fakeAnswerer{err: errors.New("dial tcp: connection refused")}
	c := newTestController(t, f)

	r, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	reply := settle(t, r)

	require.True(t, reply.IsError)
	require.Equal(t, ErrorText, reply.Text)
	require.Nil(t, reply.Metadata)

	s := c.Snapshot()
	require.Len(t, s.Turns, 2)
	require.Equal(t, "hello", s.Turns[0].Text, "user turn is kept")
	require.True(t, s.Turns[1].IsError)
	require.NotContains(t, s.Turns[1].Text, "connection refused")
	require.False(t, s.Pending)
}

func TestSubmit_StatusAndMalformedCollapseToGenericError(t *testing.T) {
	for _, e := range []error{
		&answer.StatusError{Code: 502, Body: "upstream exploded"},
		answer.ErrMalformedResponse,
	} {
		c := newTestController(t, &fakeAnswerer{err: e})
		r, err := c.Submit(context.Background(), "q")
		require.NoError(t, err)
		reply := settle(t, r)
		require.True(t, reply.IsError)
		require.Equal(t, ErrorText, reply.Text)
	}
}

func TestSubmit_PanicInClientStillSettles(t *testing.T) {
	f := &fakeAnswerer{panic: "boom"}
	c := newTestController(t, f)

	r, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	reply := settle(t, r)

	require.True(t, reply.IsError)
	require.False(t, c.Pending())
	require.Len(t, c.Snapshot().Turns, 2)
}

func TestSubmit_NilResponseIsFailure(t *testing.T) {
	c := newTestController(t, &nilAnswerer{})
	r, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.True(t, settle(t, r).IsError)
}

type nilAnswerer struct{}

func (nilAnswerer) Answer(context.Context, answer.Request) (*answer.Response, error) {
	return nil, nil
}

func TestSubmit_SuccessCarriesMetadata(t *testing.T) {
	f := &fakeAnswerer{resp: &answer.Response{
		Answer:     "X",
		Confidence: ptr(0.95),
		Citations:  []answer.Citation{{SourceID: "s1", Title: "Manual.pdf", Page: ptr(4)}},
		Escalated:  true,
	}}
	c := newTestController(t, f)

	r, err := c.Submit(context.Background(), "q")
	require.NoError(t, err)
	reply := settle(t, r)

	require.False(t, reply.IsError)
	require.NotNil(t, reply.Metadata)
	require.InDelta(t, 0.95, *reply.Metadata.Confidence, 1e-9)
	require.Equal(t, []Citation{{Title: "Manual.pdf", Page: ptr(4)}}, reply.Metadata.Citations)
	require.True(t, reply.Metadata.Escalated)
}

func TestSubmit_RequestOutlivesCallerContext(t *testing.T) {
	f := &fakeAnswerer{}
	c := newTestController(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := c.Submit(ctx, "hello")
	require.NoError(t, err)
	require.False(t, settle(t, r).IsError)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NoError(t, f.ctxErr[0])
}

func TestClear_KeepsConversationID(t *testing.T) {
	c := newTestController(t, &fakeAnswerer{})
	id := c.ConversationID()

	r, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	settle(t, r)

	c.Clear()
	s := c.Snapshot()
	require.Empty(t, s.Turns)
	require.Equal(t, id, s.ConversationID)

	// ids keep counting after a clear
	r, err = c.Submit(context.Background(), "again")
	require.NoError(t, err)
	require.EqualValues(t, 3, r.User.ID)
	settle(t, r)
}

func TestClear_LateResponseLandsInCurrentTranscript(t *testing.T) {
	f := &fakeAnswerer{gate: make(chan struct{})}
	c := newTestController(t, f)

	r, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	c.Clear()
	require.Empty(t, c.Snapshot().Turns)
	require.True(t, c.Pending())

	close(f.gate)
	settle(t, r)

	s := c.Snapshot()
	require.Len(t, s.Turns, 1)
	require.Equal(t, SenderAssistant, s.Turns[0].Sender)
	require.False(t, s.Pending)
}

func TestConversationID_StablePerSessionDistinctAcrossSessions(t *testing.T) {
	f := &fakeAnswerer{}
	t0 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	a := newTestController(t, f, WithClock(func() time.Time { return t0 }))
	b := newTestController(t, f, WithClock(func() time.Time { return t0.Add(time.Second) }))

	id := a.ConversationID()
	require.Regexp(t, `^conv_[0-9A-Z]{26}$`, id)
	for i := 0; i < 3; i++ {
		r, err := a.Submit(context.Background(), "q")
		require.NoError(t, err)
		settle(t, r)
		require.Equal(t, id, a.ConversationID())
	}
	require.NotEqual(t, id, b.ConversationID())

	for _, req := range f.requests() {
		require.Equal(t, id, *req.ConversationID)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	f := &fakeAnswerer{resp: &answer.Response{Answer: "X", Confidence: ptr(0.9)}}
	c := newTestController(t, f)
	r, err := c.Submit(context.Background(), "q")
	require.NoError(t, err)
	settle(t, r)

	s := c.Snapshot()
	s.Turns[0].Text = "mutated"
	*s.Turns[1].Metadata.Confidence = 0.1

	s2 := c.Snapshot()
	require.Equal(t, "q", s2.Turns[0].Text)
	require.InDelta(t, 0.9, *s2.Turns[1].Metadata.Confidence, 1e-9)
}

func TestNewController_RequiresAnswerer(t *testing.T) {
	_, err := NewController(DefaultEmbedConfig(), nil)
	require.Error(t, err)
}
