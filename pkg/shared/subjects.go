package shared

import "fmt"

// NATS Subject patterns
const (
	SubjectPrefix = "crm"

	// Case subjects
	SubjectCases       = SubjectPrefix + ".cases"
	SubjectCasesAll    = SubjectCases + ".>"
	SubjectCaseEvent   = SubjectCases + ".%s" // event type
	SubjectCaseCreated = SubjectCases + "." + EventTypeCreated
	SubjectCaseUpdated = SubjectCases + "." + EventTypeUpdated
	SubjectCaseDeleted = SubjectCases + "." + EventTypeDeleted
)

// Stream, consumer and bucket names
const (
	StreamCases = "CRM_CASES"

	ConsumerCaseProcessor = "case-processor"

	BucketPreferences = "CRM_PREFERENCES"
)

// CaseEventSubject returns the subject a case event of the given type is published on.
func CaseEventSubject(eventType string) string {
	return fmt.Sprintf(SubjectCaseEvent, eventType)
}
