package telephony

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-telephony/internal/calls"
	"crm-telephony/internal/crm"
)

type callerFixture struct {
	*tokenFixture
	calls  *calls.MemoryRepo
	crm    *crm.MemoryRepo
	caller *Caller
}

func newCallerFixture(t *testing.T) *callerFixture {
	t.Helper()
	tf := newTokenFixture(t)
	f := &callerFixture{tokenFixture: tf, calls: calls.NewMemoryRepo(), crm: crm.NewMemoryRepo()}
	f.caller = NewCaller(tf.tm, tf.provider, crm.NewMatcher(f.crm, f.crm, "US"), calls.NewReconciler(f.calls), "(555) 000-0000", "US")
	return f
}

func TestPlaceCall_NormalizesAndLogsInitiatedRecord(t *testing.T) {
	f := newCallerFixture(t)
	f.seed(t, "u1", f.now.Add(time.Hour))
	f.provider.ringOutID = "ro-1"

	c := crm.Contact{ID: "c1", Phone: "555-123-4567", CreatedAt: f.now}
	f.crm.AddContact(c)
	f.crm.AddDeal(crm.Deal{ID: "d1", ContactID: "c1", StageName: "Negotiation", CreatedAt: f.now})

	res, err := f.caller.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "5551234567"})
	require.NoError(t, err)
	assert.Equal(t, "ro-1", res.ProviderCallID)
	assert.Equal(t, "+15551234567", res.To)
	assert.Equal(t, "+15550000000", res.From)
	assert.Equal(t, "+15551234567", f.provider.lastRingOut.To)
	assert.True(t, f.provider.lastRingOut.PlayPrompt)

	recs := f.calls.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, calls.DirectionOutbound, recs[0].Direction)
	assert.Equal(t, calls.CallStatusInitiated, recs[0].Status)
	assert.Equal(t, "+15551234567", recs[0].ToNumber)
	assert.Equal(t, "c1", recs[0].MatchedContactID)
	assert.Equal(t, "d1", recs[0].MatchedDealID)
	assert.Equal(t, recs[0].ID, res.CallRecordID)
}

func TestPlaceCall_FromOverride(t *testing.T) {
	f := newCallerFixture(t)
	f.seed(t, "u1", f.now.Add(time.Hour))

	res, err := f.caller.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "+15551234567", From: "+1 555 222 3333"})
	require.NoError(t, err)
	assert.Equal(t, "+15552223333", res.From)
}

func TestPlaceCall_InvalidArguments(t *testing.T) {
	f := newCallerFixture(t)
	ctx := context.Background()

	_, err := f.caller.PlaceCall(ctx, PlaceCallRequest{UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.caller.PlaceCall(ctx, PlaceCallRequest{To: "5551234567"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	noMain := NewCaller(f.tm, f.provider, nil, calls.NewReconciler(f.calls), "", "US")
	_, err = noMain.PlaceCall(ctx, PlaceCallRequest{UserID: "u1", To: "5551234567"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPlaceCall_NotConnected(t *testing.T) {
	f := newCallerFixture(t)
	_, err := f.caller.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "5551234567"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, f.calls.Records())
}

func TestPlaceCall_401RefreshesAndRetriesOnce(t *testing.T) {
	f := newCallerFixture(t)
	f.seed(t, "u1", f.now.Add(time.Hour))
	f.provider.ringOutStatuses = []int{http.StatusUnauthorized}
	f.provider.ringOutID = "ro-2"

	res, err := f.caller.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "5551234567"})
	require.NoError(t, err)
	assert.Equal(t, "ro-2", res.ProviderCallID)
	assert.Equal(t, []string{"stored-access", "refreshed-access"}, f.provider.ringOutTokens)
	assert.Equal(t, 1, f.provider.refreshCalls)
}

func TestPlaceCall_Repeated401IsUnauthorized(t *testing.T) {
	f := newCallerFixture(t)
	f.seed(t, "u1", f.now.Add(time.Hour))
	f.provider.ringOutStatuses = []int{http.StatusUnauthorized, http.StatusUnauthorized}

	_, err := f.caller.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "5551234567"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrCallFailed)
	assert.Empty(t, f.calls.Records())
}

func TestPlaceCall_ProviderErrorIsCallFailed(t *testing.T) {
	f := newCallerFixture(t)
	f.seed(t, "u1", f.now.Add(time.Hour))
	f.provider.ringOutStatuses = []int{http.StatusBadRequest}

	_, err := f.caller.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "5551234567"})
	require.ErrorIs(t, err, ErrCallFailed)
	var cf *CallFailedError
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, http.StatusBadRequest, cf.StatusCode)
}

func TestPlaceCall_TransportErrorIsCallFailedZero(t *testing.T) {
	f := newCallerFixture(t)
	f.seed(t, "u1", f.now.Add(time.Hour))
	f.provider.ringOutErr = errTransport

	_, err := f.caller.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "5551234567"})
	var cf *CallFailedError
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, 0, cf.StatusCode)
}

type failingReconciler struct{}

func (failingReconciler) Upsert(context.Context, calls.CallRecord) (calls.CallRecord, error) {
	return calls.CallRecord{}, errors.New("db down")
}

type failingMatcher struct{}

func (failingMatcher) MatchByPhone(context.Context, string) (crm.Match, error) {
	return crm.Match{}, errors.New("db down")
}

func TestPlaceCall_LoggingFailuresDoNotFailTheCall(t *testing.T) {
	f := newCallerFixture(t)
	f.seed(t, "u1", f.now.Add(time.Hour))
	f.provider.ringOutID = "ro-3"

	c := NewCaller(f.tm, f.provider, failingMatcher{}, failingReconciler{}, "+15550000000", "US")
	res, err := c.PlaceCall(context.Background(), PlaceCallRequest{UserID: "u1", To: "5551234567"})
	require.NoError(t, err)
	assert.Equal(t, "ro-3", res.ProviderCallID)
	assert.Empty(t, res.CallRecordID)
}
