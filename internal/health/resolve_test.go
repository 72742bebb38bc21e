package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperke/client-health/internal/model"
)

func rec(label string, end time.Time, sent, newLeads, replies, positives, bounces int64) model.PerformanceRecord {
	return model.PerformanceRecord{
		ClientLabel:     label,
		StartDate:       end,
		EndDate:         end,
		TotalSent:       sent,
		NewLeadsReached: newLeads,
		RepliesCount:    replies,
		PositiveReply:   positives,
		BounceCount:     bounces,
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	clients := []model.Client{
		{ID: 1, Code: "ACME"},
		{ID: 2, Code: " globex "},
		{ID: 3, Code: "initech"},
		{ID: 4, Code: ""},
	}
	records := []model.PerformanceRecord{
		rec("acme", date(2025, 2, 8), 10, 10, 1, 0, 0),
		rec("Globex", date(2025, 2, 8), 10, 10, 1, 0, 0),
		rec("", date(2025, 2, 8), 10, 10, 1, 0, 0),
		rec("umbrella", date(2025, 2, 8), 10, 10, 1, 0, 0),
	}

	assocs := Resolve(clients, records)
	require.Len(t, assocs, 2)
	assert.Equal(t, int64(1), assocs[0].ClientID)
	assert.Equal(t, "acme", assocs[0].LabelNorm)
	assert.Equal(t, model.MatchExact, assocs[0].Confidence)
	assert.Equal(t, int64(2), assocs[1].ClientID)
	assert.Equal(t, "globex", assocs[1].LabelNorm)
	assert.Equal(t, "globex", assocs[1].CodeNorm)
}

func TestDistinctLabels(t *testing.T) {
	t.Parallel()
	labels := DistinctLabels([]model.PerformanceRecord{
		{ClientLabel: "B"}, {ClientLabel: "a"}, {ClientLabel: " b"},
	})
	assert.Equal(t, []string{"a", "b"}, labels)
}

func TestAssociationsByClient_FirstWins(t *testing.T) {
	t.Parallel()
	m := AssociationsByClient([]model.NameAssociation{
		{ClientID: 1, LabelNorm: "x"},
		{ClientID: 1, LabelNorm: "y"},
	})
	assert.Equal(t, "x", m[1].LabelNorm)
}
