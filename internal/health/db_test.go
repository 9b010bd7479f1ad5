package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	p.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.err
}

func TestDBChecker_HealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		pingErr error
		wantErr bool
	}{
		{"healthy", nil, false},
		{"ping fails", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePinger{err: tt.pingErr}
			err := NewDBChecker(p).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
			if p.calls != 1 {
				t.Errorf("expected 1 ping, got %d", p.calls)
			}
		})
	}
}

func TestDBChecker_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDBChecker(&fakePinger{}).HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
