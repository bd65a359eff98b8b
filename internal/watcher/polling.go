package watcher

import (
	"context"
	"os"
	"time"
)

// poller detects changes to a fixed set of files by comparing their
// modification time and size on every tick.
type poller struct {
	interval time.Duration
	paths    []string
	state    map[string]snapshot
	emit     func(FileEvent)
}

type snapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func newPoller(interval time.Duration, paths []string, emit func(FileEvent)) *poller {
	p := &poller{
		interval: interval,
		paths:    paths,
		state:    make(map[string]snapshot, len(paths)),
		emit:     emit,
	}
	for _, path := range paths {
		p.state[path] = stat(path)
	}
	return p
}

// run polls until ctx is done or stop is closed.
func (p *poller) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.check()
		}
	}
}

func (p *poller) check() {
	for _, path := range p.paths {
		prev := p.state[path]
		cur := stat(path)
		p.state[path] = cur

		var op Operation
		switch {
		case !prev.exists && cur.exists:
			op = OpCreate
		case prev.exists && !cur.exists:
			op = OpDelete
		case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
			op = OpModify
		default:
			continue
		}
		p.emit(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
	}
}

func stat(path string) snapshot {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}
	}
	return snapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}
