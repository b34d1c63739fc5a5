package logadapter

import (
	"context"
	"testing"

	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

func TestSendTextAssignsIDs(t *testing.T) {
	t.Parallel()
	a := New(logx.Nop())
	ctx := context.Background()
	r1, err := a.SendText(ctx, kit.ChatTarget{ChatID: 5}, "one", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	r2, _ := a.SendText(ctx, kit.ChatTarget{ChatID: 5}, "two", &kit.SendOptions{Keyboard: [][]kit.Button{{{Text: "x", Data: "y"}}}})
	if r1.ChatID != 5 || r2.MessageID != r1.MessageID+1 {
		t.Fatalf("refs %+v %+v", r1, r2)
	}
	if err := a.EditText(ctx, r1, "edited", nil); err != nil {
		t.Fatalf("edit: %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := a.SendText(cctx, kit.ChatTarget{}, "late", nil); err == nil {
		t.Fatalf("expected context error")
	}
}
