package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"energy-crm/db"
	"energy-crm/pkg/ontology"
	"energy-crm/pkg/shared"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// EventPublisher is satisfied by the embedded NATS server.
type EventPublisher interface {
	PublishWithDedup(subject string, data []byte, msgID string) error
}

type CaseService struct {
	db        *sql.DB
	sb        squirrel.StatementBuilderType
	publisher EventPublisher
	validate  *validator.Validate
	log       *logrus.Entry
	now       func() time.Time
}

// NewCaseService returns a service over conn. publisher may be nil.
func NewCaseService(conn *sql.DB, dialect db.Dialect, publisher EventPublisher, log *logrus.Entry) *CaseService {
	return &CaseService{
		db:        conn,
		sb:        db.StatementBuilder(dialect),
		publisher: publisher,
		validate:  newValidator(),
		log:       log.WithField("component", "case-service"),
		now:       time.Now,
	}
}

// ListCases returns the case with the given number when caseNumber is set,
// otherwise every case, most recently updated first.
func (s *CaseService) ListCases(ctx context.Context, caseNumber string) ([]ontology.Case, error) {
	query := s.sb.Select(ontology.CaseColumns...).From(ontology.TableCases)
	if caseNumber != "" {
		query = query.Where(squirrel.Eq{"case_number": caseNumber}).Limit(1)
	} else {
		query = query.OrderBy("updated_date DESC")
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build list query")
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query cases")
	}
	defer rows.Close()

	cases := []ontology.Case{}
	for rows.Next() {
		c, err := s.scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate cases")
	}

	return cases, nil
}

func (s *CaseService) GetCase(ctx context.Context, id string) (*ontology.Case, error) {
	sqlStr, args, err := s.sb.Select(ontology.CaseColumns...).
		From(ontology.TableCases).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build get query")
	}

	c, err := s.scanCase(s.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ontology.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}

	return c, nil
}

// CreateCase stores a fully formed case. A missing id is generated and
// missing created/updated dates default to now.
func (s *CaseService) CreateCase(ctx context.Context, c ontology.Case) (*ontology.Case, error) {
	if err := s.validate.Struct(c); err != nil {
		return nil, errors.Wrap(ontology.ErrBadParameter, validationMessage(err))
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := s.now().UTC().Format(time.RFC3339)
	if c.CreatedDate == "" {
		c.CreatedDate = now
	}
	if c.UpdatedDate == "" {
		c.UpdatedDate = c.CreatedDate
	}

	row, err := ontology.NewCaseRow(c)
	if err != nil {
		return nil, errors.Wrap(ontology.ErrBadParameter, err.Error())
	}

	if err := s.insertRow(ctx, s.db, row); err != nil {
		return nil, err
	}

	created, err := s.GetCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	s.publishCaseEvent(created.ID, created, shared.EventTypeCreated)

	return created, nil
}

// UpdateCase writes only the recognized keys present in patch. A patch with
// nothing to write returns the current record.
func (s *CaseService) UpdateCase(ctx context.Context, id string, patch map[string]json.RawMessage) (*ontology.Case, error) {
	columns, err := ontology.PatchColumns(patch)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return s.GetCase(ctx, id)
	}

	sqlStr, args, err := s.sb.Update(ontology.TableCases).
		SetMap(columns).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build update query")
	}

	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ontology.ErrDuplicateCaseNumber
		}
		return nil, errors.Wrap(err, "failed to update case")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read affected rows")
	}
	if rowsAffected == 0 {
		return nil, ontology.ErrCaseNotFound
	}

	updated, err := s.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishCaseEvent(updated.ID, updated, shared.EventTypeUpdated)

	return updated, nil
}

func (s *CaseService) DeleteCase(ctx context.Context, id string) error {
	sqlStr, args, err := s.sb.Delete(ontology.TableCases).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build delete query")
	}

	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return errors.Wrap(err, "failed to delete case")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if rowsAffected == 0 {
		return ontology.ErrCaseNotFound
	}

	s.publishCaseEvent(id, nil, shared.EventTypeDeleted)

	return nil
}

func (s *CaseService) CountCases(ctx context.Context) (int, error) {
	sqlStr, args, err := s.sb.Select("COUNT(*)").From(ontology.TableCases).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "failed to build count query")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count cases")
	}
	return count, nil
}

// SeedCases inserts the given cases in one transaction when the table is
// empty. It returns the number of rows written.
func (s *CaseService) SeedCases(ctx context.Context, cases []ontology.Case) (int, error) {
	count, err := s.CountCases(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.WithField("existing", count).Info("case store not empty, skipping seed")
		return 0, nil
	}

	err = db.Transaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, c := range cases {
			row, err := ontology.NewCaseRow(c)
			if err != nil {
				return errors.Wrapf(err, "seed case %s", c.CaseNumber)
			}
			if err := s.insertRow(ctx, tx, row); err != nil {
				return errors.Wrapf(err, "seed case %s", c.CaseNumber)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithField("count", len(cases)).Info("seeded case store")
	return len(cases), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *CaseService) insertRow(ctx context.Context, exec execer, row ontology.CaseRow) error {
	sqlStr, args, err := s.sb.Insert(ontology.TableCases).
		Columns(ontology.CaseColumns...).
		Values(row.Values()...).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build insert query")
	}

	if _, err := exec.ExecContext(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return ontology.ErrDuplicateCaseNumber
		}
		return errors.Wrap(err, "failed to create case")
	}
	return nil
}

func (s *CaseService) publishCaseEvent(caseID string, c *ontology.Case, eventType string) {
	if s.publisher == nil {
		return
	}

	event := shared.Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Subject: shared.CaseEventSubject(eventType),
		Data: map[string]interface{}{
			"case_id": caseID,
		},
		Timestamp: s.now().UTC(),
		Source:    "case-service",
	}

	if c != nil {
		event.Data["case_number"] = c.CaseNumber
		event.Data["status"] = c.Status
		event.Data["case"] = c
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal case event")
		return
	}

	msgID := fmt.Sprintf("%s-%s-%d", caseID, eventType, s.now().UnixNano())

	log := s.log.WithFields(logrus.Fields{"event": eventType, "subject": event.Subject})
	if err := s.publisher.PublishWithDedup(event.Subject, data, msgID); err != nil {
		log.WithError(err).Warn("failed to publish case event")
	} else {
		log.Debug("published case event")
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *CaseService) scanCase(scanner rowScanner) (*ontology.Case, error) {
	var row ontology.CaseRow
	if err := scanner.Scan(row.ScanTargets()...); err != nil {
		return nil, errors.Wrap(err, "failed to scan case")
	}

	c, err := ontology.AdaptCase(row)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	return false
}
