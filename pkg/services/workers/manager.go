package workers

import (
	"context"
	"sync"

	embeddednats "energy-crm/pkg/services/embedded-nats"
	"energy-crm/pkg/shared"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

type Manager struct {
	workers []Worker
	cases   *CaseEventWorker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	log     *logrus.Entry
}

// NewManager declares the case stream and its durable consumer, then builds
// the workers that read from them.
func NewManager(natsClient *embeddednats.EmbeddedNATS, log *logrus.Entry) (*Manager, error) {
	js := natsClient.JetStream()
	if js == nil {
		return nil, errors.New("JetStream not initialized")
	}

	if err := natsClient.CreateCRMStreams(); err != nil {
		return nil, err
	}
	if err := natsClient.CreateDurableConsumer(shared.StreamCases, shared.ConsumerCaseProcessor, shared.SubjectCasesAll); err != nil {
		return nil, err
	}

	log = log.WithField("component", "workers")
	ctx, cancel := context.WithCancel(context.Background())
	cases := NewCaseEventWorker(js, log)

	return &Manager{
		ctx:     ctx,
		cancel:  cancel,
		cases:   cases,
		workers: []Worker{cases},
		log:     log,
	}, nil
}

func (m *Manager) Start() error {
	for _, worker := range m.workers {
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()

			if err := w.Start(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.WithError(err).WithField("worker", w.Name()).Error("worker failed")
			}
			m.log.WithField("worker", w.Name()).Info("worker stopped")
		}(worker)
	}

	m.log.WithField("count", len(m.workers)).Info("started workers")
	return nil
}

func (m *Manager) Stop() error {
	m.cancel()
	m.wg.Wait()

	var errs error
	for _, worker := range m.workers {
		if err := worker.Stop(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "stop %s", worker.Name()))
		}
	}

	m.log.Info("all workers stopped")
	return errs
}

func (m *Manager) CaseActivity() CaseActivity {
	return m.cases.Activity()
}
