package logging

// Field name constants for structured logging.
const (
	FieldError   = "error"
	FieldPath    = "path"
	FieldPackage = "package"
	FieldSection = "section"
	FieldLink    = "link"
	FieldReason  = "reason"
	FieldURL     = "url"
	FieldKind    = "kind"
	FieldCommand = "command"

	FieldToolchain = "toolchain"
	FieldJobs      = "jobs"
	FieldCheck     = "check"

	FieldWarnings = "warnings"
	FieldErrors   = "errors"
	FieldChanged  = "changed"
	FieldVersion  = "version"
)
