package leads

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperke/client-health/internal/model"
	"github.com/hyperke/client-health/pkg/smartlead"
)

type fakeClient struct {
	campaigns    []smartlead.Campaign
	campaignsErr error
	clients      map[int64]smartlead.ClientInfo
	clientsErr   error
	leads        map[int64]smartlead.LeadCounts
	leadErrs     map[int64]error
	block        map[int64]bool

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeClient) ActiveCampaigns(context.Context) ([]smartlead.Campaign, error) {
	return f.campaigns, f.campaignsErr
}

func (f *fakeClient) Clients(context.Context) (map[int64]smartlead.ClientInfo, error) {
	return f.clients, f.clientsErr
}

func (f *fakeClient) CampaignLeads(ctx context.Context, id int64) (*smartlead.LeadCounts, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	if f.block[id] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.leadErrs[id]; err != nil {
		return nil, err
	}
	c := f.leads[id]
	return &c, nil
}

func id(v int64) *int64 { return &v }

func TestFetch_ConsolidatesByClient(t *testing.T) {
	fc := &fakeClient{
		campaigns: []smartlead.Campaign{
			{ID: 1, ClientID: id(10)},
			{ID: 2, ClientID: id(10)},
			{ID: 3, ClientName: "Beta Co"},
			{ID: 4},
		},
		clients: map[int64]smartlead.ClientInfo{10: {ID: 10, Name: "Acme"}},
		leads: map[int64]smartlead.LeadCounts{
			1: {Total: 100, Started: 40},
			2: {Total: 50, Started: 5},
			3: {Total: 10, Started: 0},
			4: {Total: 3, Started: 3},
		},
	}

	r, err := NewFetcher(fc, Config{MaxWorkers: 2}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, r.Failed())
	assert.Equal(t, []ClientSummary{
		{ClientName: "Acme", TotalLeads: 150, NotContacted: 45, Campaigns: 2},
		{ClientName: "Beta Co", TotalLeads: 10, NotContacted: 0, Campaigns: 1},
		{ClientName: "Unknown", TotalLeads: 3, NotContacted: 3, Campaigns: 1},
	}, r.Clients)
	assert.Equal(t, map[string]int64{"acme": 45, "beta co": 0, "unknown": 3}, r.Fresh())
}

func TestFetch_BoundedWorkers(t *testing.T) {
	fc := &fakeClient{leads: map[int64]smartlead.LeadCounts{}}
	for i := int64(1); i <= 30; i++ {
		fc.campaigns = append(fc.campaigns, smartlead.Campaign{ID: i, ClientName: "Acme"})
	}

	r, err := NewFetcher(fc, Config{MaxWorkers: 3}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, r.Campaigns, 30)
	assert.LessOrEqual(t, fc.peak.Load(), int32(3))
}

func TestFetch_FailedCampaignDropsClient(t *testing.T) {
	fc := &fakeClient{
		campaigns: []smartlead.Campaign{
			{ID: 1, ClientName: "Acme"},
			{ID: 2, ClientName: "Acme"},
			{ID: 3, ClientName: "Beta"},
		},
		leads:    map[int64]smartlead.LeadCounts{1: {Total: 5, Started: 5}, 3: {Total: 2, Started: 1}},
		leadErrs: map[int64]error{2: errors.New("smartlead: status 500")},
	}

	r, err := NewFetcher(fc, Config{}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Failed())
	assert.Equal(t, map[string]int64{"beta": 1}, r.Fresh())
	assert.False(t, r.Clients[0].Complete())
}

func TestFetch_TaskTimeout(t *testing.T) {
	fc := &fakeClient{
		campaigns: []smartlead.Campaign{{ID: 1, ClientName: "Slow"}, {ID: 2, ClientName: "Fast"}},
		leads:     map[int64]smartlead.LeadCounts{2: {Total: 1, Started: 1}},
		block:     map[int64]bool{1: true},
	}

	r, err := NewFetcher(fc, Config{TaskTimeout: 20 * time.Millisecond}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Failed())
	assert.ErrorIs(t, r.Campaigns[0].Err, context.DeadlineExceeded)
	assert.Equal(t, map[string]int64{"fast": 1}, r.Fresh())
}

func TestFetch_CampaignListError(t *testing.T) {
	fc := &fakeClient{campaignsErr: errors.New("smartlead: status 401")}
	_, err := NewFetcher(fc, Config{}).Fetch(context.Background())
	require.Error(t, err)
}

func TestFetch_ClientListErrorFallsBack(t *testing.T) {
	fc := &fakeClient{
		campaigns:  []smartlead.Campaign{{ID: 1, ClientID: id(10)}, {ID: 2, ClientID: id(10), ClientName: "Acme"}},
		clientsErr: errors.New("boom"),
		leads:      map[int64]smartlead.LeadCounts{1: {Total: 1, Started: 1}, 2: {Total: 1, Started: 1}},
	}
	r, err := NewFetcher(fc, Config{}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"acme": 1, "unknown": 1}, r.Fresh())
}

func TestFetch_NoCampaigns(t *testing.T) {
	r, err := NewFetcher(&fakeClient{}, Config{}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Fresh())
}

func TestFresh_NormalizedCollision(t *testing.T) {
	r := &Result{Clients: []ClientSummary{
		{ClientName: "Acme", NotContacted: 4, Campaigns: 1},
		{ClientName: "ACME ", NotContacted: 6, Campaigns: 1},
		{ClientName: "beta", NotContacted: 1, Campaigns: 1},
		{ClientName: "Beta", Campaigns: 1, FailedCampaigns: 1},
	}}
	assert.Equal(t, map[string]int64{"acme": 10}, r.Fresh())
}

func TestClientName(t *testing.T) {
	clients := map[int64]smartlead.ClientInfo{10: {Name: "Acme"}, 11: {}}
	assert.Equal(t, "Own", ClientName(smartlead.Campaign{ClientName: "Own", ClientID: id(10)}, clients))
	assert.Equal(t, "Acme", ClientName(smartlead.Campaign{ClientID: id(10)}, clients))
	assert.Equal(t, UnknownClient, ClientName(smartlead.Campaign{ClientID: id(11)}, clients))
	assert.Equal(t, UnknownClient, ClientName(smartlead.Campaign{ClientID: id(99)}, nil))
}

func strp(s string) *string { return &s }

func TestMerge(t *testing.T) {
	snaps := []model.HealthSnapshot{
		{ClientID: 1, ClientCode: "ACM", ClientName: strp("Acme Corp")},
		{ClientID: 2, ClientCode: "BETA", ClientName: strp("Beta Ltd")},
		{ClientID: 3, ClientCode: "GAM"},
		{ClientID: 4, ClientCode: "DEL", ClientName: strp("")},
		{ClientID: 5, ClientCode: "EPS"},
	}
	fresh := map[string]int64{"acme corp": 12, "beta": 0, "gam": 7, "del": 0}
	prior := map[int64]*int64{2: id(30), 5: id(9)}

	got, st := Merge(snaps, fresh, prior)
	require.NotNil(t, got[1])
	assert.Equal(t, int64(12), *got[1])
	// name "beta ltd" misses, code "beta" hits, and a fresh zero beats the prior
	require.NotNil(t, got[2])
	assert.Equal(t, int64(0), *got[2])
	assert.Equal(t, int64(7), *got[3])
	assert.Equal(t, int64(0), *got[4])
	assert.Equal(t, int64(9), *got[5])
	assert.Equal(t, MergeStats{Fresh: 4, Preserved: 1}, st)

	Apply(snaps, got)
	assert.Equal(t, int64(12), *snaps[0].NotContactedLeads)
}

func TestMerge_NilFreshPreservesAll(t *testing.T) {
	snaps := []model.HealthSnapshot{{ClientID: 1, ClientCode: "A"}, {ClientID: 2, ClientCode: "B"}}
	prior := map[int64]*int64{1: id(3)}

	got, st := Merge(snaps, nil, prior)
	assert.Equal(t, int64(3), *got[1])
	assert.Nil(t, got[2])
	assert.Contains(t, got, int64(2))
	assert.Equal(t, MergeStats{Preserved: 1, Unknown: 1}, st)

	// the merged value is a copy
	*prior[1] = 100
	assert.Equal(t, int64(3), *got[1])
}
