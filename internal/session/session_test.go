package session

import (
	"context"
	"errors"
	"testing"
)

type recordingControl struct {
	calls      []string
	failTarget int
}

func (c *recordingControl) SetScript(ctx context.Context, name string) error { return nil }
func (c *recordingControl) CurrentScript(ctx context.Context) (string, error) {
	return "", nil
}
func (c *recordingControl) Settings(ctx context.Context) (Settings, error) { return Settings{}, nil }
func (c *recordingControl) UpdateSettings(ctx context.Context, settings Settings) error {
	return nil
}
func (c *recordingControl) RestartMap(ctx context.Context) error { return nil }
func (c *recordingControl) NextMap(ctx context.Context) error    { return nil }
func (c *recordingControl) Kick(ctx context.Context, login string) error {
	return nil
}

func (c *recordingControl) ForceSpectator(ctx context.Context, login string, mode SpectatorMode) error {
	c.calls = append(c.calls, "ForceSpectator")
	return nil
}

func (c *recordingControl) ForceSpectatorTarget(ctx context.Context, login, target string, camera int) error {
	c.calls = append(c.calls, "ForceSpectatorTarget")
	if c.failTarget > 0 {
		c.failTarget--
		return errors.New("busy")
	}
	return nil
}

type batchingControl struct {
	recordingControl
	batches [][]Call
}

func (c *batchingControl) Multicall(ctx context.Context, calls ...Call) error {
	c.batches = append(c.batches, calls)
	return nil
}

func TestSpectateTargetMulticall(t *testing.T) {
	c := &batchingControl{}
	if err := SpectateTarget(context.Background(), c, "viewer", "racer"); err != nil {
		t.Fatalf("SpectateTarget returned error: %v", err)
	}
	if len(c.batches) != 1 || len(c.batches[0]) != 2 {
		t.Fatalf("expected one batch of two calls, got %v", c.batches)
	}
	if len(c.calls) != 0 {
		t.Fatalf("single calls should not be used with multicall: %v", c.calls)
	}
	if c.batches[0][1].Params[1] != "racer" {
		t.Fatalf("unexpected target params: %v", c.batches[0][1].Params)
	}
}

func TestSpectateTargetRetriesOnce(t *testing.T) {
	c := &recordingControl{failTarget: 1}
	if err := SpectateTarget(context.Background(), c, "viewer", "racer"); err != nil {
		t.Fatalf("SpectateTarget returned error: %v", err)
	}
	want := []string{"ForceSpectator", "ForceSpectatorTarget", "ForceSpectatorTarget"}
	if len(c.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", c.calls, want)
	}

	c = &recordingControl{failTarget: 2}
	if err := SpectateTarget(context.Background(), c, "viewer", "racer"); err == nil {
		t.Fatalf("expected error after retry failed")
	}
	if len(c.calls) != 3 {
		t.Fatalf("expected exactly one retry, calls = %v", c.calls)
	}
}
