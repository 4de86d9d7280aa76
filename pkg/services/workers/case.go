package workers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"energy-crm/pkg/shared"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// CaseActivity summarises the case events the worker has consumed.
type CaseActivity struct {
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
	LastCaseID string    `json:"lastCaseId,omitempty"`
	LastEvent  time.Time `json:"lastEvent"`
}

// CaseEventWorker consumes crm.cases.> and keeps a running CaseActivity.
type CaseEventWorker struct {
	*BaseWorker

	mu       sync.RWMutex
	activity CaseActivity
}

func NewCaseEventWorker(js nats.JetStreamContext, log *logrus.Entry) *CaseEventWorker {
	return &CaseEventWorker{
		BaseWorker: NewBaseWorker(
			"CaseEventWorker",
			js,
			shared.StreamCases,
			shared.ConsumerCaseProcessor,
			shared.SubjectCasesAll,
			log,
		),
	}
}

func (w *CaseEventWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, w.handle)
}

func (w *CaseEventWorker) handle(msg *nats.Msg) error {
	var event shared.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// redelivery cannot fix a malformed payload
		w.log.WithError(err).WithField("subject", msg.Subject).Error("dropping malformed case event")
		return nil
	}
	return w.record(event)
}

func (w *CaseEventWorker) record(event shared.Event) error {
	caseID, _ := event.Data["case_id"].(string)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch event.Type {
	case shared.EventTypeCreated:
		w.activity.Created++
	case shared.EventTypeUpdated:
		w.activity.Updated++
	case shared.EventTypeDeleted:
		w.activity.Deleted++
	default:
		return errors.Newf("unknown case event type %q", event.Type)
	}
	w.activity.LastCaseID = caseID
	w.activity.LastEvent = event.Timestamp

	w.log.WithFields(logrus.Fields{
		"event":   event.Type,
		"case_id": caseID,
	}).Debug("case event processed")
	return nil
}

func (w *CaseEventWorker) Activity() CaseActivity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.activity
}
