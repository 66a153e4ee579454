package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
	"github.com/SlpAus/pollsafe-backend/internal/platform/database/dbtest"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
	"github.com/SlpAus/pollsafe-backend/internal/vote"
	"github.com/SlpAus/pollsafe-backend/pkg/ratelimit"
)

func newWSServer(t *testing.T, hub *Hub, connsPerMinute, roomEventsPerMinute int) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := ratelimit.NewPerMinuteStore(connsPerMinute, clockwork.NewRealClock())
	h := NewWSHandler(hub, limiter, roomEventsPerMinute, []string{"http://localhost:3000"}, zap.NewNop())

	r := gin.New()
	r.GET("/ws", h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ, pollID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, ClientMessage{Type: typ, PollID: pollID}))
}

func read(conn *websocket.Conn, timeout time.Duration) (ServerMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var msg ServerMessage
	err := wsjson.Read(ctx, conn, &msg)
	return msg, err
}

type noDirectory struct{}

func (noDirectory) DisplayName(context.Context, string) (string, error) { return "", nil }

func TestSubscriberReceivesTallyAfterVote(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newWSServer(t, hub, 30, 60)

	db := dbtest.Open(t, poll.Migrate, vote.Migrate)
	polls := poll.NewRepository(db)
	p, err := polls.Create(context.Background(), "creator", poll.CreateInput{Question: "Lunch?", Options: []string{"Pizza", "Salad"}})
	require.NoError(t, err)
	svc := vote.NewService(db, polls, noDirectory{}, vote.NewRateLimiter(2, time.Hour), hub, clockwork.NewRealClock(), zap.NewNop())

	watcher := dial(t, url)
	bystander := dial(t, url)
	send(t, watcher, TypeJoinPoll, p.ID)
	require.Eventually(t, func() bool { return hub.Members(p.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	signals := identity.Resolve("203.0.113.9", "another-browser", "")
	_, err = svc.Cast(context.Background(), vote.CastRequest{
		PollID:          p.ID,
		OptionID:        p.Options[1].ID,
		Voter:           identity.ForRequest("", signals),
		ParticipantName: "Sam",
		Signals:         signals,
	})
	require.NoError(t, err)

	msg, err := read(watcher, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TypeUpdateResults, msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, p.ID, msg.Data.PollID)
	assert.EqualValues(t, 1, msg.Data.TotalVotes)
	assert.Equal(t, "Salad", msg.Data.Options[0].Text)

	_, err = read(watcher, 100*time.Millisecond)
	assert.Error(t, err, "exactly one update per vote")
	_, err = read(bystander, 100*time.Millisecond)
	assert.Error(t, err, "connections that never joined receive nothing")
}

func TestLeaveStopsUpdates(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newWSServer(t, hub, 30, 60)

	conn := dial(t, url)
	send(t, conn, TypeJoinPoll, pollP)
	require.Eventually(t, func() bool { return hub.Members(pollP) == 1 }, 2*time.Second, 10*time.Millisecond)
	send(t, conn, TypeLeavePoll, pollP)
	require.Eventually(t, func() bool { return hub.Members(pollP) == 0 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, hub.Deliver(tallyFor(pollP, 1)))
}

func TestRejectsMalformedPollIDs(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newWSServer(t, hub, 30, 60)
	conn := dial(t, url)

	for _, id := range []string{"short", strings.Repeat("x", 65)} {
		send(t, conn, TypeJoinPoll, id)
		msg, err := read(conn, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, TypeSocketError, msg.Type)
		assert.NotEmpty(t, msg.Error)
	}
	assert.Equal(t, 0, hub.Members("short"))

	assert.True(t, ValidPollID(strings.Repeat("x", 8)))
	assert.True(t, ValidPollID(strings.Repeat("x", 64)))
}

func TestRoomEventsAreCappedPerConnection(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newWSServer(t, hub, 30, 2)
	conn := dial(t, url)

	send(t, conn, TypeJoinPoll, "poll-a-0001")
	send(t, conn, TypeJoinPoll, "poll-b-0001")
	send(t, conn, TypeJoinPoll, "poll-c-0001")

	msg, err := read(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TypeSocketError, msg.Type)
	assert.Equal(t, 1, hub.Members("poll-a-0001"))
	assert.Equal(t, 1, hub.Members("poll-b-0001"))
	assert.Equal(t, 0, hub.Members("poll-c-0001"))
}

func TestMalformedMessagesCountTowardsRoomEventCap(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newWSServer(t, hub, 30, 2)
	conn := dial(t, url)

	writeRaw := func(payload string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(payload)))
	}

	writeRaw("{not json")
	writeRaw(`{"type":"shout","pollId":"poll-a-0001"}`)
	for i := 0; i < 2; i++ {
		msg, err := read(conn, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, TypeSocketError, msg.Type)
	}

	send(t, conn, TypeJoinPoll, "poll-a-0001")
	msg, err := read(conn, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, TypeSocketError, msg.Type)

	assert.Equal(t, 0, hub.Members("poll-a-0001"))

	for i := 0; i < 5; i++ {
		writeRaw("{not json")
	}
	_, err = read(conn, 200*time.Millisecond)
	assert.Error(t, err, "a throttled connection gets one error, not one per message")
}

func TestConnectionsAreCappedPerAddress(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	url := newWSServer(t, hub, 1, 60)

	dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestOriginPatternsStripScheme(t *testing.T) {
	assert.Equal(t, []string{"localhost:3000", "example.com"}, originPatterns([]string{"http://localhost:3000", " example.com ", ""}))
}
