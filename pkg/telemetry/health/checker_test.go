package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckReadinessAllOK(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("pool", func(ctx context.Context) error { return nil })
	c.RegisterCheck("fetcher", func(ctx context.Context) error { return nil })

	status := c.CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("status = %q, want ready", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Errorf("expected 2 check results, got %d", len(status.Checks))
	}
}

func TestCheckReadinessFailurePropagates(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("pool", func(ctx context.Context) error { return errors.New("pool empty") })

	status := c.CheckReadiness(context.Background())
	if status.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", status.Status)
	}
	if status.Checks["pool"].Message != "pool empty" {
		t.Errorf("check message = %q", status.Checks["pool"].Message)
	}
}

func TestCheckTimeout(t *testing.T) {
	c := New(50 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	status := c.CheckReadiness(context.Background())
	if status.Status != "unhealthy" {
		t.Errorf("slow check should time out, got %q", status.Status)
	}
}

func TestNoChecksIsReady(t *testing.T) {
	c := New(0)
	status := c.CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("empty checker should be ready, got %q", status.Status)
	}
}
