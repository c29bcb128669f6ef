package reporting

import (
	"context"
	"testing"
	"time"

	"crm-telephony/internal/calls"
)

func seedCalls(t *testing.T, now time.Time) *calls.Reconciler {
	t.Helper()
	rec := calls.NewReconciler(calls.NewMemoryRepo())
	rows := []calls.CallRecord{
		{ProviderCallID: "p1", Direction: calls.DirectionInbound, Status: calls.CallStatusCompleted, DurationSeconds: 30, RecordingURL: "https://rec/1", MatchedContactID: "c1", CreatedAt: now},
		{ProviderCallID: "p2", Direction: calls.DirectionOutbound, Status: calls.CallStatusMissed, CreatedAt: now},
		{ProviderCallID: "p3", Direction: calls.DirectionOutbound, Status: calls.CallStatusInitiated, DurationSeconds: 15, CreatedAt: now},
		{ProviderCallID: "old", Direction: calls.DirectionInbound, Status: calls.CallStatusCompleted, DurationSeconds: 500, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, r := range rows {
		if _, err := rec.Upsert(context.Background(), r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return rec
}

func TestCallsSummary_Aggregates(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seedCalls(t, now))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 {
		t.Fatalf("expected 3 calls, got %d", out.TotalCalls)
	}
	if out.InboundCalls != 1 || out.OutboundCalls != 2 {
		t.Fatalf("unexpected direction split: %+v", out)
	}
	if out.CompletedCalls != 1 || out.MissedCalls != 1 || out.InProgressCalls != 1 {
		t.Fatalf("unexpected status split: %+v", out)
	}
	if out.TotalDurationSeconds != 45 || out.AverageDurationSeconds != 15 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.RecordedCalls != 1 || out.MatchedCalls != 1 {
		t.Fatalf("unexpected recorded/matched: %+v", out)
	}
}

func TestCallsSummary_InvalidRange(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(calls.NewReconciler(calls.NewMemoryRepo()))

	bad := []TimeRange{
		{},
		{From: now, To: now},
		{From: now, To: now.Add(-time.Minute)},
		{From: now.Add(-400 * 24 * time.Hour), To: now},
	}
	for _, r := range bad {
		if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: r}); err != ErrInvalidRequest {
			t.Fatalf("range %+v: expected ErrInvalidRequest, got %v", r, err)
		}
	}
}
