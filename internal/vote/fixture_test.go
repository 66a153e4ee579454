package vote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
	"github.com/SlpAus/pollsafe-backend/internal/platform/database/dbtest"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type recordingPublisher struct {
	mu      sync.Mutex
	tallies []poll.Tally
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, tally poll.Tally) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.tallies = append(p.tallies, tally)
	return nil
}

func (p *recordingPublisher) published() []poll.Tally {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]poll.Tally(nil), p.tallies...)
}

type stubDirectory map[string]string

func (d stubDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := d[userID]
	if !ok {
		return "", errors.New("no such user")
	}
	return name, nil
}

type fixture struct {
	db      *gorm.DB
	clock   fakeClock
	polls   *poll.Repository
	pub     *recordingPublisher
	service *Service

	pollID string
	optX   string
	optY   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t, poll.Migrate, Migrate)
	clock := clockwork.NewFakeClockAt(t0)
	polls := poll.NewRepository(db)
	pub := &recordingPublisher{}
	users := stubDirectory{"alice": "Alice"}

	f := &fixture{
		db:      db,
		clock:   clock,
		polls:   polls,
		pub:     pub,
		service: NewService(db, polls, users, NewRateLimiter(2, time.Hour), pub, clock, zap.NewNop()),
	}
	f.pollID, f.optX, f.optY = f.createPoll(t, "creator", true)
	return f
}

func (f *fixture) createPoll(t *testing.T, creator string, public bool) (string, string, string) {
	t.Helper()
	p, err := f.polls.Create(context.Background(), creator, poll.CreateInput{
		Question: "Tabs or spaces?",
		Options:  []string{"X", "Y"},
		IsPublic: &public,
	})
	require.NoError(t, err)
	return p.ID, p.Options[0].ID, p.Options[1].ID
}

// device 返回一台固定设备的身份信号
func device(ip string) identity.Signals {
	return identity.Resolve(ip, "Mozilla/5.0 (X11; Linux x86_64)", "")
}

func (f *fixture) castAs(userID string, signals identity.Signals, optionID, name string) (*CastResult, error) {
	return f.service.Cast(context.Background(), CastRequest{
		PollID:          f.pollID,
		OptionID:        optionID,
		Voter:           identity.ForRequest(userID, signals),
		ParticipantName: name,
		Signals:         signals,
	})
}

func (f *fixture) statusOf(t *testing.T, userID string, signals identity.Signals) Status {
	t.Helper()
	s, err := f.service.Status(context.Background(), f.pollID, identity.ForRequest(userID, signals), signals)
	require.NoError(t, err)
	return s
}

func (f *fixture) optionCount(t *testing.T, optionID string) int64 {
	t.Helper()
	var o poll.Option
	require.NoError(t, f.db.Where("id = ?", optionID).First(&o).Error)
	return o.VoteCount
}

func (f *fixture) voteRows(t *testing.T, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&Vote{}).Where(where, args...).Count(&n).Error)
	return n
}
