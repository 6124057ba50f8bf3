package search

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"caseflow/metrics"
)

// Notifier sends reindex signals off the request path. Failures are logged
// and counted, never returned.
type Notifier struct {
	indexer Indexer
	timeout time.Duration
	log     logrus.FieldLogger
	wg      sync.WaitGroup
}

func NewNotifier(indexer Indexer, timeout time.Duration, log logrus.FieldLogger) *Notifier {
	if indexer == nil {
		indexer = Noop{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Notifier{indexer: indexer, timeout: timeout, log: log.WithField("module", "search")}
}

// CaseChanged returns immediately. The signal outlives the caller's
// context, bounded by the notifier timeout.
func (n *Notifier) CaseChanged(caseID string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		err := n.indexer.Reindex(ctx, caseID)
		metrics.Reindex(err)
		if err != nil {
			n.log.WithError(err).WithField("case_id", caseID).Warn("reindex signal failed")
		}
	}()
}

// Wait blocks until in-flight signals finish. Call on shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
