package poll_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/platform/database/dbtest"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
	"github.com/SlpAus/pollsafe-backend/internal/vote"
)

func setup(t *testing.T) (*gorm.DB, *poll.Repository) {
	t.Helper()
	db := dbtest.Open(t, poll.Migrate, vote.Migrate)
	return db, poll.NewRepository(db)
}

func addVote(t *testing.T, db *gorm.DB, p *poll.Poll, optionIdx int, name string, at time.Time) {
	t.Helper()
	opt := p.Options[optionIdx]
	id := fmt.Sprintf("vote-%d", at.UnixNano())
	require.NoError(t, db.Create(&vote.Vote{
		ID:                id,
		PollID:            p.ID,
		OptionID:          opt.ID,
		ParticipantName:   name,
		IPHash:            "hash",
		DeviceFingerprint: id,
		CreatedAt:         at,
	}).Error)
	require.NoError(t, db.Model(&poll.Option{}).Where("id = ?", opt.ID).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1)).Error)
}

func TestCreateValidatesInput(t *testing.T) {
	_, repo := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   poll.CreateInput
		want error
	}{
		{"empty question", poll.CreateInput{Question: "  ", Options: []string{"a", "b"}}, poll.ErrQuestionMissing},
		{"long question", poll.CreateInput{Question: strings.Repeat("q", poll.MaxQuestionLength+1), Options: []string{"a", "b"}}, poll.ErrQuestionTooLong},
		{"one option", poll.CreateInput{Question: "Q", Options: []string{"a"}}, poll.ErrOptionCount},
		{"eleven options", poll.CreateInput{Question: "Q", Options: strings.Split("a b c d e f g h i j k", " ")}, poll.ErrOptionCount},
		{"blank option", poll.CreateInput{Question: "Q", Options: []string{"a", " "}}, poll.ErrOptionInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Create(ctx, "creator", tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, poll.IsValidationError(err))
		})
	}
}

func TestCreateTrimsAndDefaultsToPublic(t *testing.T) {
	_, repo := setup(t)

	p, err := repo.Create(context.Background(), "creator", poll.CreateInput{
		Question: "  Favourite colour? ",
		Options:  strings.Split("red green blue cyan magenta yellow black white grey pink", " "),
	})
	require.NoError(t, err)

	assert.Equal(t, "Favourite colour?", p.Question)
	assert.True(t, p.IsPublic)
	assert.GreaterOrEqual(t, len(p.ID), 8)
	require.Len(t, p.Options, poll.MaxOptions)
	for i, o := range p.Options {
		assert.Equal(t, p.ID, o.PollID)
		assert.Equal(t, i, o.Position)
		assert.Zero(t, o.VoteCount)
	}
}

func TestGetHonoursVisibilityAndShowsParticipantsToCreator(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()
	private := false

	p, err := repo.Create(ctx, "owner", poll.CreateInput{Question: "Q", Options: []string{"a", "b"}, IsPublic: &private})
	require.NoError(t, err)

	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	addVote(t, db, p, 1, "Al", base)
	addVote(t, db, p, 1, "", base.Add(time.Minute))
	addVote(t, db, p, 0, "Cy", base.Add(2*time.Minute))

	_, err = repo.Get(ctx, p.ID, "")
	assert.ErrorIs(t, err, poll.ErrNotFound)
	_, err = repo.Get(ctx, p.ID, "someone-else")
	assert.ErrorIs(t, err, poll.ErrNotFound)
	_, err = repo.Get(ctx, "missing", "owner")
	assert.ErrorIs(t, err, poll.ErrNotFound)

	d, err := repo.Get(ctx, p.ID, "owner")
	require.NoError(t, err)
	assert.EqualValues(t, 3, d.TotalVotes)
	assert.Equal(t, "b", d.Options[0].Text, "options are ordered by vote count")
	require.Len(t, d.Participants, 3)
	assert.Equal(t, "Cy", d.Participants[0].Name, "newest first")
	assert.Equal(t, "a", d.Participants[0].OptionText)
	assert.Equal(t, "Anonymous", d.Participants[1].Name)
}

func TestListByCreator(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, "owner", poll.CreateInput{Question: "first", Options: []string{"a", "b"}})
	require.NoError(t, err)
	_, err = repo.Create(ctx, "someone-else", poll.CreateInput{Question: "other", Options: []string{"a", "b"}})
	require.NoError(t, err)
	addVote(t, db, first, 0, "Al", time.Now())

	list, err := repo.ListByCreator(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].Question)
	assert.EqualValues(t, 1, list[0].TotalVotes)

	list, err = repo.ListByCreator(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteCascadesAndRequiresCreator(t *testing.T) {
	db, repo := setup(t)
	ctx := context.Background()

	p, err := repo.Create(ctx, "owner", poll.CreateInput{Question: "Q", Options: []string{"a", "b"}})
	require.NoError(t, err)
	keep, err := repo.Create(ctx, "owner", poll.CreateInput{Question: "keep", Options: []string{"a", "b"}})
	require.NoError(t, err)
	addVote(t, db, p, 0, "Al", time.Now())
	addVote(t, db, keep, 0, "Al", time.Now().Add(time.Second))

	assert.ErrorIs(t, repo.Delete(ctx, p.ID, "intruder"), poll.ErrNotCreator)
	assert.ErrorIs(t, repo.Delete(ctx, "missing", "owner"), poll.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, p.ID, "owner"))

	var n int64
	require.NoError(t, db.Model(&vote.Vote{}).Where("poll_id = ?", p.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&poll.Option{}).Where("poll_id = ?", p.ID).Count(&n).Error)
	assert.Zero(t, n)
	_, err = repo.Get(ctx, p.ID, "owner")
	assert.ErrorIs(t, err, poll.ErrNotFound)

	tally, err := repo.Tally(ctx, keep.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, tally.TotalVotes)
}

func TestTallyOfMissingPoll(t *testing.T) {
	_, repo := setup(t)
	_, err := repo.Tally(context.Background(), "missing")
	assert.ErrorIs(t, err, poll.ErrNotFound)
}
