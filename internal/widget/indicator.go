package widget

import (
	"context"
	"time"
)

// Indicator animates the typing affordance for hosts that redraw on a timer
// (the terminal client). It is purely cosmetic.
type Indicator struct {
	Frames   []string
	Interval time.Duration
}

var DefaultIndicator = Indicator{
	Frames:   []string{"typing   ", "typing.  ", "typing.. ", "typing..."},
	Interval: 300 * time.Millisecond,
}

// Run draws frames until ctx is cancelled, then draws "" once so the host can
// erase the last frame.
func (in Indicator) Run(ctx context.Context, draw func(frame string)) {
	frames := in.Frames
	if len(frames) == 0 {
		frames = DefaultIndicator.Frames
	}
	interval := in.Interval
	if interval <= 0 {
		interval = DefaultIndicator.Interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	i := 0
	draw(frames[i])
	for {
		select {
		case <-ctx.Done():
			draw("")
			return
		case <-ticker.C:
			i = (i + 1) % len(frames)
			draw(frames[i])
		}
	}
}

// Follow runs the indicator until the receipt settles or ctx is done. When
// ctx ends first the reply still lands in the transcript; only the wait is
// abandoned.
func (in Indicator) Follow(ctx context.Context, r *Receipt, draw func(frame string)) (Turn, error) {
	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		in.Run(runCtx, draw)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	select {
	case t := <-r.Done:
		return t, nil
	case <-ctx.Done():
		return Turn{}, ctx.Err()
	}
}
