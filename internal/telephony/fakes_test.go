package telephony

import (
	"context"
	"errors"
	"sync"
	"time"

	"crm-telephony/internal/ringcentral"
)

// fakeProvider is a scripted Provider. Zero values succeed.
type fakeProvider struct {
	mu sync.Mutex

	now func() time.Time

	refreshCalls  int
	refreshErr    error
	exchangeCalls int
	exchangeErr   error

	ringOutTokens []string
	// ringOutStatuses is consumed one per call; 0 or exhausted means success.
	ringOutStatuses []int
	ringOutErr      error
	ringOutID       string
	lastRingOut     ringcentral.RingOutRequest

	callLog    []ringcentral.CallLogRecord
	callLogErr error
}

func (f *fakeProvider) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (f *fakeProvider) ExchangeCode(ctx context.Context, code string) (ringcentral.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return ringcentral.TokenSet{}, f.exchangeErr
	}
	return ringcentral.TokenSet{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       f.clock().Add(time.Hour),
		OwnerID:      "acct-1",
	}, nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (ringcentral.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return ringcentral.TokenSet{}, f.refreshErr
	}
	return ringcentral.TokenSet{
		AccessToken:  "refreshed-access",
		RefreshToken: "refreshed-refresh",
		Expiry:       f.clock().Add(time.Hour),
	}, nil
}

func (f *fakeProvider) RingOut(ctx context.Context, accessToken string, req ringcentral.RingOutRequest) (ringcentral.RingOutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ringOutTokens = append(f.ringOutTokens, accessToken)
	f.lastRingOut = req
	if len(f.ringOutStatuses) > 0 {
		code := f.ringOutStatuses[0]
		f.ringOutStatuses = f.ringOutStatuses[1:]
		if code != 0 {
			return ringcentral.RingOutResult{}, &ringcentral.APIError{StatusCode: code}
		}
	}
	if f.ringOutErr != nil {
		return ringcentral.RingOutResult{}, f.ringOutErr
	}
	return ringcentral.RingOutResult{ID: f.ringOutID}, nil
}

func (f *fakeProvider) CallLog(ctx context.Context, accessToken string, from, to time.Time) ([]ringcentral.CallLogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callLog, f.callLogErr
}

var errTransport = errors.New("dial tcp: connection refused")
