package patch

// Transformation is one named, idempotent text fix. All three functions are
// pure over the file text; the engine owns every side effect (ledger,
// backup, file write).
//
// Signature answers "does the defect pattern exist". Fixed answers "is the
// idempotency marker already present". Rewrite computes the new text and
// reports whether it actually changed anything - a missing anchor comes back
// as applied=false, never as an error.
type Transformation struct {
	Fix         FixType
	Target      TargetKind
	Description string

	Signature func(text string) bool
	Fixed     func(text string) bool
	Rewrite   func(text string) (string, bool)
}
