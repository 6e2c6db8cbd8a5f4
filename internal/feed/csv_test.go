package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-orderflow/internal/model"
)

func writeTape(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tape.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入测试磁带失败: %v", err)
	}
	return path
}

func collect(t *testing.T, src TradeSource) []model.TradeEvent {
	t.Helper()
	out := make(chan model.TradeEvent, 64)
	done := make(chan error, 1)
	go func() {
		done <- src.Stream(context.Background(), out)
		close(out)
	}()

	events := make([]model.TradeEvent, 0)
	for ev := range out {
		events = append(events, ev)
	}
	if err := <-done; err != nil {
		t.Fatalf("回放失败: %v", err)
	}
	return events
}

func TestCSVSourceReplay(t *testing.T) {
	path := writeTape(t, `time,price,volume,direction
2024-06-03T09:30:00Z,10.52,300,buy
2024-06-03T09:30:01Z,10.53,200,sell
2024-06-03T09:30:02Z,10.51,500,B
`)
	events := collect(t, NewCSVSource(path, 0, zerolog.Nop()))

	if len(events) != 3 {
		t.Fatalf("应回放 3 笔成交, 实际 %d", len(events))
	}
	first := events[0]
	if first.Price != 10.52 || first.Volume != 300 || first.Direction != model.DirectionBuy {
		t.Fatalf("首笔成交解析错误: %+v", first)
	}
	// 10.52 × 300 × 100 = 315600 分, 十进制精确计算不受浮点误差影响。
	if first.Amount != 315600 {
		t.Fatalf("金额应精确为 315600 分, 实际 %d", first.Amount)
	}
	if events[2].Direction != model.DirectionBuy {
		t.Fatalf("方向缩写 B 应解析为买入: %+v", events[2])
	}
	if !events[1].Time.Equal(time.Date(2024, 6, 3, 9, 30, 1, 0, time.UTC)) {
		t.Fatalf("时间解析错误: %v", events[1].Time)
	}
}

func TestCSVSourceSkipsBadRows(t *testing.T) {
	path := writeTape(t, `time,price,volume,direction
2024-06-03T09:30:00Z,10.52,300,buy
not-a-time,10.53,200,sell
2024-06-03T09:30:02Z,10.51,abc,buy
2024-06-03T09:30:03Z,10.50,100,hold
2024-06-03T09:30:04Z,10.49,400,sell
`)
	events := collect(t, NewCSVSource(path, 0, zerolog.Nop()))
	if len(events) != 2 {
		t.Fatalf("坏行应被跳过, 只回放 2 笔: %d", len(events))
	}
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), 0, zerolog.Nop())
	out := make(chan model.TradeEvent, 1)
	if err := src.Stream(context.Background(), out); err == nil {
		t.Fatal("文件缺失应报错")
	}
}

func TestWireTradeToEvent(t *testing.T) {
	ev, err := wireTrade{Time: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC), Price: 10.5, Volume: 200, Direction: "sell"}.toEvent()
	if err != nil {
		t.Fatalf("合法消息应解析成功: %v", err)
	}
	if ev.Amount != 210000 || ev.Direction != model.DirectionSell {
		t.Fatalf("消息转换错误: %+v", ev)
	}

	if _, err := (wireTrade{Price: 0, Volume: 1, Direction: "buy"}).toEvent(); err == nil {
		t.Fatal("非正价格应报错")
	}
	if _, err := (wireTrade{Price: 1, Volume: 1, Direction: "hold"}).toEvent(); err == nil {
		t.Fatal("未知方向应报错")
	}
}
