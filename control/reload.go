// control/reload.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Rule-file hot-reload queue: a background goroutine dequeues reload
// requests and copy-on-swaps a freshly parsed RuleTable into the
// engine's AtomicTable. The queue itself is a plain work queue, the
// same shape used for generic task dispatch elsewhere, applied here to
// rule-file reload requests.

package control

import (
	"os"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/upe/ruletable"
	"github.com/momentics/upe/ruletable/rulefile"
)

// pollInterval bounds how long a reload request can sit in the queue
// before the background goroutine notices it.
const pollInterval = 5 * time.Millisecond

// RuleReloader watches a queue of rule-file paths and atomically swaps
// the target table whenever one loads successfully.
type RuleReloader struct {
	target  *ruletable.AtomicTable
	resolve rulefile.IfindexResolver
	onError func(error)

	mu   sync.Mutex
	q    *queue.Queue
	stop chan struct{}
	done chan struct{}
}

// NewRuleReloader starts the background reload goroutine. onError may
// be nil; when set, it is called (off the caller's goroutine) for any
// path that fails to load.
func NewRuleReloader(target *ruletable.AtomicTable, resolve rulefile.IfindexResolver, onError func(error)) *RuleReloader {
	r := &RuleReloader{
		target:  target,
		resolve: resolve,
		onError: onError,
		q:       queue.New(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Enqueue schedules path to be loaded and swapped in. Safe to call
// from any goroutine.
func (r *RuleReloader) Enqueue(path string) {
	r.mu.Lock()
	r.q.Add(path)
	r.mu.Unlock()
}

// Close stops the background goroutine and waits for it to exit.
func (r *RuleReloader) Close() {
	close(r.stop)
	<-r.done
}

func (r *RuleReloader) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		path, ok := r.dequeue()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}
		r.apply(path)
	}
}

func (r *RuleReloader) dequeue() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Length() == 0 {
		return "", false
	}
	v := r.q.Peek()
	r.q.Remove()
	path, _ := v.(string)
	return path, true
}

func (r *RuleReloader) apply(path string) {
	f, err := os.Open(path)
	if err != nil {
		r.fail(err)
		return
	}
	defer f.Close()

	table, err := rulefile.Load(f, r.resolve)
	if err != nil {
		r.fail(err)
		return
	}
	r.target.Swap(table)
}

func (r *RuleReloader) fail(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}

// WatchConfig registers an OnReload listener on cs so that any
// committed snapshot carrying a non-empty RulesPath enqueues that
// path — a ConfigStore-driven hot-swap, the same destination
// (AtomicTable.Swap) SIGHUP-driven reloads reach in cmd/upe, just
// triggered by a settings change instead of a signal.
func (r *RuleReloader) WatchConfig(cs *ConfigStore) {
	cs.OnReload(func(s Settings) {
		if s.RulesPath != "" {
			r.Enqueue(s.RulesPath)
		}
	})
}
