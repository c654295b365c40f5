package patch

// FixType identifies one transformation in the catalog. The set is closed:
// the attempt ledger, the classifier and the run summary all key on these
// values, and they appear verbatim in persisted JSON.
type FixType string

const (
	FixSettingsAccessCrash FixType = "settings-access-crash"
	FixNullPointerGuard    FixType = "null-pointer-guard"
	FixExceptionWrapping   FixType = "exception-wrapping"
	FixMutexDeclaration    FixType = "mutex-declaration"
	FixMutexUsage          FixType = "mutex-usage"
	FixBuildLibraryPath    FixType = "build-library-path"
	FixBuildRPath          FixType = "build-rpath"
	FixSymbolBridging      FixType = "symbol-bridging"

	// FixPreflightEnv is a slot for the shell-level environment checks.
	// It has no catalog entry: the loop hands it to a black-box handler
	// that remedy can invoke but not verify.
	FixPreflightEnv FixType = "preflight-env"
)

// Known reports whether f is one of the defined fix types. Rule files are
// user-editable, so unknown values must be caught at load time rather than
// silently classified into nothing.
func Known(f FixType) bool {
	switch f {
	case FixSettingsAccessCrash, FixNullPointerGuard, FixExceptionWrapping,
		FixMutexDeclaration, FixMutexUsage, FixBuildLibraryPath,
		FixBuildRPath, FixSymbolBridging, FixPreflightEnv:
		return true
	}
	return false
}

// TargetKind names which configured file a transformation operates on.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetFilterSource
	TargetBuildFile
	TargetSupportFile
)
