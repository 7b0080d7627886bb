// constants.go
package main

// File processing statuses
const (
	FileStatusPending    = "pending"    // Uploaded but not yet processed
	FileStatusReady      = "ready"      // Parsed and ready for review
	FileStatusProcessing = "processing" // Currently being processed
	FileStatusCompleted  = "completed"  // Review finished
	FileStatusError      = "error"      // Ingestion or processing failed
)

// File types accepted at upload
const (
	FileTypeCV     = "cv"
	FileTypePaper  = "paper"
	FileTypeReport = "report"
	FileTypeOther  = "other"
)

// Annotation verification statuses
const (
	VerificationPending   = "pending"   // Not yet reviewed
	VerificationVerified  = "verified"  // Confirmed against the PDF
	VerificationIncorrect = "incorrect" // Content does not match the PDF
	VerificationMissing   = "missing"   // Present in the PDF, absent from the JSON
	VerificationRedundant = "redundant" // Present in the JSON, absent from the PDF
)

// History change types
const (
	ChangeTypeCreate   = "create"
	ChangeTypeUpdate   = "update"
	ChangeTypeVerify   = "verify"
	ChangeTypeMissing  = "missing"
	ChangeTypeRollback = "rollback"
)

// Field type for the record that holds the whole parsed document
const FieldTypeRoot = "root"

// Constants for archive delivery status and retry settings
const (
	DeliveryPending   = "pending"   // Indicates an archive copy is pending delivery
	DeliveryCompleted = "completed" // Indicates an archive copy was delivered successfully
	DeliveryFailed    = "failed"    // Indicates an archive delivery has failed
	MaxRetryAttempts  = 5           // Maximum number of retry attempts for delivery
)

// DefaultMarkerSuffix marks a JSON key or string element as reviewer-verified.
// Legacy wire convention carried over from the extraction pipeline.
const DefaultMarkerSuffix = "-comlhj"

// defaultFieldOrder is the canonical top-level section order for CV documents.
// Overridable through the annotation section of the config file.
var defaultFieldOrder = []string{
	"personal_info",
	"education",
	"appointments",
	"clinical_activities",
	"clinical_trials",
	"community_services",
	"editorial_services",
	"grant_review_services",
	"grants",
	"honors",
	"patents",
	"presentations",
	"professional_organization_services",
	"publications",
	"teaching_and_training_activities",
	"trainees",
	"university_administrative_services",
}
