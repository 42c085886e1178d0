package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoster_AddIsIdempotent(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Seed(Participant{ID: "p1", Identity: "alice"}, nil)

	bob := Participant{ID: "p2", Identity: "bob", JoinedAt: time.Now()}
	req.True(roster.Add(bob))
	req.False(roster.Add(bob))

	count := 0
	for _, p := range roster.Snapshot() {
		if p.ID == "p2" {
			count++
		}
	}
	req.Equal(1, count)
	req.Equal(2, roster.Len())
}

func TestRoster_RemoveAbsentIsNoop(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Seed(Participant{ID: "p1", Identity: "alice"}, []Participant{{ID: "p2", Identity: "bob"}})

	_, removed := roster.Remove("unknown")
	req.False(removed)
	req.Equal(2, roster.Len())

	bob, removed := roster.Remove("p2")
	req.True(removed)
	req.Equal("bob", bob.Identity)
	_, removed = roster.Remove("p2")
	req.False(removed)
	req.Equal(1, roster.Len())
}

func TestRoster_SeedReplacesPreviousPopulation(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Seed(Participant{ID: "p1", Identity: "alice"}, []Participant{
		{ID: "p2", Identity: "bob"},
		{ID: "p3", Identity: "clara"},
	})

	// Given a reconnection where alice got a new id and only dave is around
	roster.Seed(Participant{ID: "p9", Identity: "alice"}, []Participant{{ID: "p4", Identity: "dave"}})

	snapshot := roster.Snapshot()
	req.Len(snapshot, 2)
	req.Equal("p9", snapshot[0].ID)
	req.True(snapshot[0].IsLocal)
	req.Equal("dave", snapshot[1].Identity)
	_, found := roster.Lookup("p2")
	req.False(found)
}

func TestRoster_AtMostOneLocalParticipant(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	roster.Seed(Participant{ID: "p1", Identity: "alice"}, []Participant{
		{ID: "p2", Identity: "bob", IsLocal: true},
	})

	// The transport echoing the local participant back must not duplicate it
	req.False(roster.Add(Participant{ID: "p1", Identity: "alice"}))

	locals := 0
	for _, p := range roster.Snapshot() {
		if p.IsLocal {
			locals++
		}
	}
	req.Equal(1, locals)
}

func TestRoster_QualityAndLocalUpdates(t *testing.T) {
	req := require.New(t)
	roster := NewRoster()
	req.False(roster.UpdateLocal(func(p *Participant) { p.Capabilities.Audio = true }))

	roster.Seed(Participant{ID: "p1", Identity: "alice"}, []Participant{{ID: "p2", Identity: "bob"}})
	req.True(roster.SetQuality("p2", QualityPoor))
	req.False(roster.SetQuality("p7", QualityPoor))
	req.True(roster.UpdateLocal(func(p *Participant) { p.Capabilities.Audio = true }))

	bob, _ := roster.LookupIdentity("bob")
	req.Equal(QualityPoor, bob.Quality)
	local, ok := roster.Local()
	req.True(ok)
	req.True(local.Capabilities.Audio)

	roster.Clear()
	req.Equal(0, roster.Len())
	req.Empty(roster.Snapshot())
}
