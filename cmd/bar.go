package cmd

import (
	"context"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/buildsheet/harvester/internal/progress"
)

// barSink renders the crawl's entity progress as a terminal bar. Discovered
// entities grow the bar's maximum; detailed or failed entities advance it.
type barSink struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
	max int
}

func newBarSink() *barSink {
	return &barSink{
		bar: progressbar.NewOptions(0,
			progressbar.OptionSetDescription("harvesting"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (s *barSink) Consume(_ context.Context, evt progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Stage {
	case progress.StageEntityDiscovered:
		s.max++
		s.bar.ChangeMax(s.max)
	case progress.StageEntityDetailed, progress.StageEntityFailed:
		return s.bar.Add(1)
	}
	return nil
}

func (s *barSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.bar.Finish()
}
