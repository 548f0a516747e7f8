// Package clock абстрагирует время, чтобы истечение подтверждений и
// периодический ремонт можно было проверять без реального ожидания.
package clock

import "time"

type Clock interface {
	Now() time.Time
	// After — как time.After; при d <= 0 канал срабатывает сразу.
	After(d time.Duration) <-chan time.Time
	// NewTicker паникует при d <= 0, как time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Ticker: C с буфером 1, лишние тики отбрасываются.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

func (t *Ticker) Stop() { t.stop() }

// Real — системное время.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
