package stream

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stock-orderflow/internal/model"
	"stock-orderflow/internal/statestore"
	"stock-orderflow/internal/window"
)

func newTestProcessor(t *testing.T, cfg Config, store statestore.Store) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("构造流处理器失败: %v", err)
	}
	return p
}

func streamEvent(i int, amount int64, dir model.Direction) model.TradeEvent {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	return model.TradeEvent{
		Time:      base.Add(time.Duration(i) * 100 * time.Millisecond),
		Price:     10,
		Volume:    amount / 1000,
		Amount:    amount,
		Direction: dir,
	}
}

func TestProcessOrderClassifiesAgainstAdaptiveThreshold(t *testing.T) {
	p := newTestProcessor(t, Config{}, nil)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		r := p.ProcessOrder(ctx, streamEvent(i, 1000, model.DirectionBuy))
		if r.IsLargeOrder {
			t.Fatalf("均值附近的订单不应判为大单: 第 %d 笔 %+v", i, r)
		}
	}

	big := p.ProcessOrder(ctx, streamEvent(200, 10000, model.DirectionBuy))
	if !big.IsLargeOrder {
		t.Fatalf("10 倍金额的订单应判为大单: %+v", big)
	}

	stats := p.Statistics()
	if stats.ProcessedCount != 201 {
		t.Fatalf("处理计数应为 201, 实际 %d", stats.ProcessedCount)
	}
	if stats.LargeOrderCount != 1 {
		t.Fatalf("大单计数应为 1, 实际 %d", stats.LargeOrderCount)
	}
	if stats.BuyAmount != 200*1000+10000 {
		t.Fatalf("买入金额累计错误: %d", stats.BuyAmount)
	}
}

func TestBufferEviction(t *testing.T) {
	p := newTestProcessor(t, Config{MaxBufferSize: 10}, nil)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		p.ProcessOrder(ctx, streamEvent(i, int64(1000+i), model.DirectionBuy))
	}

	orders := p.RecentOrders()
	if len(orders) != 10 {
		t.Fatalf("缓冲区应被截断到 10, 实际 %d", len(orders))
	}
	if orders[0].Amount != 1005 {
		t.Fatalf("应从头部淘汰最旧订单: 首元素金额 %d", orders[0].Amount)
	}
}

func TestWindowRoutingAndStatistics(t *testing.T) {
	p := newTestProcessor(t, Config{
		Windows: []window.Config{{Name: "min1", Type: window.TypeTumbling, Size: time.Minute}},
	}, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p.ProcessOrder(ctx, streamEvent(i, 1000, model.DirectionBuy))
	}

	ids := p.ActiveWindows()
	if len(ids) != 1 {
		t.Fatalf("同一分钟内的事件应只打开一个翻滚窗口: %v", ids)
	}
	ws, ok := p.WindowStatistics(ids[0])
	if !ok {
		t.Fatalf("缺少窗口统计: %s", ids[0])
	}
	if ws.ElementCount != 5 || ws.TotalAmount != 5000 {
		t.Fatalf("窗口聚合错误: %+v", ws)
	}
	if ws.BuyAmount != 5000 || ws.SellAmount != 0 {
		t.Fatalf("窗口买卖金额错误: %+v", ws)
	}
	if ws.Threshold.N == 0 {
		t.Fatalf("窗口本地阈值应基于窗口元素重新计算: %+v", ws.Threshold)
	}
}

func TestBatchProcess(t *testing.T) {
	p := newTestProcessor(t, Config{}, nil)
	ctx := context.Background()

	trades := make([]model.TradeEvent, 500)
	for i := range trades {
		trades[i] = streamEvent(i, 1000, model.DirectionBuy)
	}
	results, err := p.BatchProcess(ctx, trades)
	if err != nil {
		t.Fatalf("批处理失败: %v", err)
	}
	if len(results) != 500 {
		t.Fatalf("批处理应返回逐笔结果: %d", len(results))
	}
	if got := p.Statistics().ProcessedCount; got != 500 {
		t.Fatalf("批处理后处理计数应为 500, 实际 %d", got)
	}

	if out, err := p.BatchProcess(ctx, nil); err != nil || len(out) != 0 {
		t.Fatalf("空批次应返回空结果: %v %v", out, err)
	}
}

func TestCheckpointAndRestore(t *testing.T) {
	store := statestore.NewMemory()
	p := newTestProcessor(t, Config{CheckpointID: "test"}, store)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		p.ProcessOrder(ctx, streamEvent(i, int64(1000+i*10), model.DirectionBuy))
	}
	before := p.CurrentThreshold()
	if err := p.Checkpoint(ctx); err != nil {
		t.Fatalf("写检查点失败: %v", err)
	}

	restored := newTestProcessor(t, Config{CheckpointID: "test"}, store)
	if !restored.RestoreFromCheckpoint(ctx, "test") {
		t.Fatalf("应能从已有检查点恢复")
	}
	if got := restored.CurrentThreshold(); got.Threshold != before.Threshold || got.Mean != before.Mean {
		t.Fatalf("恢复后的阈值应与快照一致: %+v != %+v", got, before)
	}
	if got := len(restored.RecentOrders()); got != 150 {
		t.Fatalf("恢复后的缓冲区长度应为 150, 实际 %d", got)
	}

	if restored.RestoreFromCheckpoint(ctx, "missing") {
		t.Fatalf("不存在的检查点恢复应返回 false")
	}
}

func TestResetClearsEverything(t *testing.T) {
	p := newTestProcessor(t, Config{
		Windows: []window.Config{{Name: "min1", Type: window.TypeTumbling, Size: time.Minute}},
	}, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		p.ProcessOrder(ctx, streamEvent(i, 1000, model.DirectionBuy))
	}
	p.Reset()

	if got := p.Statistics(); got.ProcessedCount != 0 || got.BufferSize != 0 {
		t.Fatalf("Reset 后统计应清零: %+v", got)
	}
	if ids := p.ActiveWindows(); len(ids) != 0 {
		t.Fatalf("Reset 后不应有活跃窗口: %v", ids)
	}
	if len(p.RecentResults()) != 0 {
		t.Fatalf("Reset 后不应有历史分类结果")
	}
}
