package bot

import (
	"context"
	"fmt"
	"time"
)

// StartRepairLoop раз в every досоздаёт недостающие каналы заявок в статусе ready.
func (bot *RecruitBot) StartRepairLoop(every time.Duration) error {
	bot.rpMu.Lock()
	defer bot.rpMu.Unlock()

	if every <= 0 {
		return fmt.Errorf("repair-loop: интервал должен быть положительным, получено %s", every)
	}
	if bot.rpRunning {
		// уже запущен: новый интервал вступит в силу после перезапуска
		bot.rpEvery = every
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	bot.rpCancel = cancel
	bot.rpEvery = every
	bot.rpRunning = true

	go bot.repairLoop(ctx, every) // фоновая горутина
	return nil
}

func (bot *RecruitBot) StopRepairLoop() {
	bot.rpMu.Lock()
	defer bot.rpMu.Unlock()
	if !bot.rpRunning {
		return
	}
	bot.rpRunning = false
	if bot.rpCancel != nil {
		bot.rpCancel()
		bot.rpCancel = nil
	}
}

// repairLoop живёт, пока не вызовут StopRepairLoop().
func (bot *RecruitBot) repairLoop(ctx context.Context, every time.Duration) {
	t := bot.clock.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			bot.RepairOnce(ctx)
		}
	}
}

// RepairOnce — один проход ремонта с ограничением по времени.
func (bot *RecruitBot) RepairOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if _, err := bot.svc.Repair(ctx); err != nil {
		bot.logger.Error("repair pass failed", "err", err)
	}
}
