// This test lives in the external window_test package because importing
// statestore from an in-package test would form the import cycle
// statestore → config → window.
package window_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-orderflow/internal/model"
	"stock-orderflow/internal/statestore"
	"stock-orderflow/internal/window"
)

func TestTumblingFireAndClose(t *testing.T) {
	testBase := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	eventAt := func(ts time.Time, amount int64) model.TradeEvent {
		return model.TradeEvent{Time: ts, Price: 10, Volume: amount / 1000, Amount: amount, Direction: model.DirectionBuy}
	}

	store := statestore.NewMemory()
	eng, err := window.NewEngine(window.Config{Name: "t", Type: window.TypeTumbling, Size: 5 * time.Second}, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("构造窗口引擎失败: %v", err)
	}
	ctx := context.Background()

	ids := eng.AddEvent(ctx, eventAt(testBase, 1000))
	windowID := ids[0]

	// Watermark inside the window: still open, not yet fired.
	state, ok := eng.WindowState(windowID)
	if !ok || state.TriggerCount != 0 || state.IsClosed {
		t.Fatalf("窗口尚未到期不应触发: %+v", state)
	}

	// Advance the watermark past the window end: fires but stays open.
	eng.AddEvent(ctx, eventAt(testBase.Add(6*time.Second), 1000))
	state, _ = eng.WindowState(windowID)
	if state.TriggerCount != 1 {
		t.Fatalf("水位越过窗口末端后应触发一次, 实际 %d", state.TriggerCount)
	}
	if state.IsClosed {
		t.Fatalf("触发后应保持开启直到水位越过 end+size")
	}

	// Watermark ≥ end+size: closes and a summary lands in the store.
	eng.AddEvent(ctx, eventAt(testBase.Add(11*time.Second), 1000))
	state, _ = eng.WindowState(windowID)
	if !state.IsClosed {
		t.Fatalf("水位越过 end+size 后窗口应关闭")
	}

	raw, ok, err := store.Get(ctx, "window/"+windowID)
	if err != nil || !ok {
		t.Fatalf("关闭后应写入窗口摘要: ok=%v err=%v", ok, err)
	}
	var summary window.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("摘要应为合法 JSON: %v", err)
	}
	if summary.ElementCount != 1 || summary.TotalAmount != 1000 {
		t.Fatalf("摘要内容不正确: %+v", summary)
	}
}
