package patch

import (
	"regexp"
	"strings"
)

// Anchors for the filter source. The filter is plain C-style OBS callback
// code, so function signatures are stable landmarks.
var (
	anchorUpdateFn = NewAnchor("update-callback",
		`static void stabilizer_filter_update\(void \*data, obs_data_t \*settings\)\s*\{`)
	anchorVideoFn = NewAnchor("frame-callback",
		`static struct obs_source_frame \*stabilizer_filter_video\(void \*data, struct obs_source_frame \*frame\)\s*\{`)
	anchorStructHeight = NewAnchor("state-struct-tail", `uint32_t height;`)
	anchorFrameGuard   = NewAnchor("frame-null-guard",
		`if \(!filter \|\| !frame \|\| !filter->enabled\) \{\s*return frame;\s*\}`)
	// The closing brace at column 0 pins this to the end of the frame
	// callback rather than an early return inside a nested block.
	anchorFrameReturn = NewAnchor("frame-final-return", `\n\s+return frame;\n\}`)
)

// Anchors for the build configuration and loader shim.
var (
	anchorObsLibrary   = NewAnchor("obs-library-set", `set\(OBS_LIBRARY[^)]*\)`)
	installRPathRe     = regexp.MustCompile(`INSTALL_RPATH "([^"]*)"`)
	settingsInUpdateRe = regexp.MustCompile(`(?s)stabilizer_filter_update.*?obs_data_get`)
	frameGuardedRe     = regexp.MustCompile(`(?s)stabilizer_filter_video.*?if \(!filter`)
)

const settingsWorkaroundBlock = `
    // WORKAROUND: Don't access settings in update function to avoid crash
    // Settings are already read in create function
    // See docs/issue_001_settings_crash.md for details
    struct stabilizer_filter *filter = (struct stabilizer_filter *)data;
    if (!filter) {
        obs_log(LOG_WARNING, "Update called with NULL filter data");
        return;
    }
`

const updateGuardBlock = `
    struct stabilizer_filter *filter = (struct stabilizer_filter *)data;
    if (!filter) {
        obs_log(LOG_WARNING, "Update called with NULL filter data");
        return;
    }
`

const frameGuardBlock = `
    struct stabilizer_filter *filter = (struct stabilizer_filter *)data;
    if (!filter || !frame || !filter->enabled) {
        return frame;
    }
`

const catchChainBlock = `
    } catch (const cv::Exception &e) {
        obs_log(LOG_ERROR, "OpenCV error in stabilizer: %s", e.what());
    } catch (const std::exception &e) {
        obs_log(LOG_ERROR, "Error in stabilizer: %s", e.what());
    } catch (...) {
        obs_log(LOG_ERROR, "Unknown error in stabilizer");
    }

    return frame;
}`

const mutexFieldBlock = `
    std::mutex mutex;`

const lockGuardBlock = `

    std::lock_guard<std::mutex> lock(filter->mutex);`

const obsLibrarySetLine = `set(OBS_LIBRARY "/Applications/OBS.app/Contents/Frameworks/libobs.framework/Versions/A/libobs")`

const bridgingBlock = `
// Symbol bridging for OBS API compatibility
#ifdef HAVE_OBS_HEADERS
bool obs_register_source(struct obs_source_info *info)
{
    extern bool obs_register_source_s(struct obs_source_info *info, size_t size);
    return obs_register_source_s(info, sizeof(*info));
}

void obs_log(int log_level, const char *format, ...)
{
    va_list args;
    va_start(args, format);
    extern void blogva(int log_level, const char *format, va_list args);
    blogva(log_level, format, args);
    va_end(args);
}
#endif
`

// Catalog returns the full transformation set keyed by fix type.
// Every entry is independent and composable: the Basic Functionality fix
// sequence applies several of them to the same file in order.
func Catalog() map[FixType]Transformation {
	entries := []Transformation{
		settingsAccessCrash(),
		nullPointerGuard(),
		exceptionWrapping(),
		mutexDeclaration(),
		mutexUsage(),
		buildLibraryPath(),
		buildRPath(),
		symbolBridging(),
	}

	catalog := make(map[FixType]Transformation, len(entries))
	for _, t := range entries {
		catalog[t.Fix] = t
	}
	return catalog
}

// settingsAccessCrash guards against reading settings inside the update
// callback. The workaround comment doubles as the idempotency marker.
func settingsAccessCrash() Transformation {
	return Transformation{
		Fix:         FixSettingsAccessCrash,
		Target:      TargetFilterSource,
		Description: "Added settings access workaround to update callback",
		Signature: func(text string) bool {
			return settingsInUpdateRe.MatchString(text)
		},
		Fixed: func(text string) bool {
			return strings.Contains(text, "WORKAROUND: Don't access settings")
		},
		Rewrite: func(text string) (string, bool) {
			span, ok := anchorUpdateFn.Locate(text)
			if !ok {
				return text, false
			}
			return insertAfter(text, span, settingsWorkaroundBlock), true
		},
	}
}

// nullPointerGuard inserts early-return guards into the update and frame
// callbacks. Each anchor carries its own marker, so a file that already
// guards one callback only gains the missing guard.
func nullPointerGuard() Transformation {
	updateNeeds := func(text string) bool {
		return anchorUpdateFn.Found(text) && !strings.Contains(text, "if (!filter)")
	}
	frameNeeds := func(text string) bool {
		return anchorVideoFn.Found(text) && !frameGuardedRe.MatchString(text)
	}

	return Transformation{
		Fix:         FixNullPointerGuard,
		Target:      TargetFilterSource,
		Description: "Added NULL pointer guards to filter callbacks",
		Signature: func(text string) bool {
			return anchorUpdateFn.Found(text) || anchorVideoFn.Found(text)
		},
		Fixed: func(text string) bool {
			return !updateNeeds(text) && !frameNeeds(text)
		},
		Rewrite: func(text string) (string, bool) {
			applied := false
			if updateNeeds(text) {
				if span, ok := anchorUpdateFn.Locate(text); ok {
					text = insertAfter(text, span, updateGuardBlock)
					applied = true
				}
			}
			if frameNeeds(text) {
				if span, ok := anchorVideoFn.Locate(text); ok {
					text = insertAfter(text, span, frameGuardBlock)
					applied = true
				}
			}
			return text, applied
		},
	}
}

// exceptionWrapping wraps the frame callback body in a try/catch boundary
// covering the OpenCV error type, std::exception and a catch-all, each
// mapped to a logged diagnostic with the untouched frame returned.
func exceptionWrapping() Transformation {
	return Transformation{
		Fix:         FixExceptionWrapping,
		Target:      TargetFilterSource,
		Description: "Added exception handling to frame callback",
		Signature: func(text string) bool {
			return strings.Contains(text, "stabilizer_filter_video")
		},
		Fixed: func(text string) bool {
			return strings.Contains(text, "cv::Exception")
		},
		Rewrite: func(text string) (string, bool) {
			fnSpan, ok := anchorVideoFn.Locate(text)
			if !ok {
				return text, false
			}
			retSpan, ok := anchorFrameReturn.Locate(text)
			if !ok {
				return text, false
			}
			// Splice the catch chain first; its offset would shift
			// once the try line goes in above it.
			text = replaceSpan(text, retSpan, catchChainBlock)
			text = insertAfter(text, fnSpan, "\n\n    try {")
			return text, true
		},
	}
}

// mutexDeclaration adds the mutual-exclusion field to the per-instance
// state struct, anchored on its trailing dimension field.
func mutexDeclaration() Transformation {
	return Transformation{
		Fix:         FixMutexDeclaration,
		Target:      TargetFilterSource,
		Description: "Added mutex field for thread safety",
		Signature: func(text string) bool {
			return strings.Contains(text, "struct stabilizer_filter")
		},
		Fixed: func(text string) bool {
			return strings.Contains(text, "std::mutex")
		},
		Rewrite: func(text string) (string, bool) {
			span, ok := anchorStructHeight.Locate(text)
			if !ok {
				return text, false
			}
			return insertAfter(text, span, mutexFieldBlock), true
		},
	}
}

// mutexUsage takes a scoped lock at the top of the frame callback, right
// after the null-pointer guard. It only applies once the mutex field and
// the guard both exist.
func mutexUsage() Transformation {
	return Transformation{
		Fix:         FixMutexUsage,
		Target:      TargetFilterSource,
		Description: "Added scoped lock to frame callback",
		Signature: func(text string) bool {
			return strings.Contains(text, "std::mutex")
		},
		Fixed: func(text string) bool {
			return strings.Contains(text, "std::lock_guard")
		},
		Rewrite: func(text string) (string, bool) {
			span, ok := anchorFrameGuard.Locate(text)
			if !ok {
				return text, false
			}
			return insertAfter(text, span, lockGuardBlock), true
		},
	}
}

// buildLibraryPath points the build at the bundled OBS framework library.
func buildLibraryPath() Transformation {
	return Transformation{
		Fix:         FixBuildLibraryPath,
		Target:      TargetBuildFile,
		Description: "Fixed OBS library path in build configuration",
		Signature: func(text string) bool {
			return strings.Contains(text, "OBS_LIBRARY")
		},
		Fixed: func(text string) bool {
			return strings.Contains(text, "/Applications/OBS.app/Contents/Frameworks")
		},
		Rewrite: func(text string) (string, bool) {
			span, ok := anchorObsLibrary.Locate(text)
			if !ok {
				return text, false
			}
			return replaceSpan(text, span, obsLibrarySetLine), true
		},
	}
}

// buildRPath extends the install RPATH with the Homebrew and local library
// directories so the loader can resolve the OpenCV dylibs.
func buildRPath() Transformation {
	return Transformation{
		Fix:         FixBuildRPath,
		Target:      TargetBuildFile,
		Description: "Extended install RPATH with system library paths",
		Signature: func(text string) bool {
			return strings.Contains(text, "INSTALL_RPATH")
		},
		Fixed: func(text string) bool {
			return strings.Contains(text, "/opt/homebrew/lib") ||
				strings.Contains(text, "/usr/local/lib")
		},
		Rewrite: func(text string) (string, bool) {
			if !installRPathRe.MatchString(text) {
				return text, false
			}
			out := installRPathRe.ReplaceAllString(text,
				`INSTALL_RPATH "$1;/opt/homebrew/lib;/usr/local/lib"`)
			return out, true
		},
	}
}

// symbolBridging appends the loader-shim functions that bridge the sized
// registration call and varargs logging. The bridged symbol name is the
// idempotency marker; the anchor is the end of the file.
func symbolBridging() Transformation {
	return Transformation{
		Fix:         FixSymbolBridging,
		Target:      TargetSupportFile,
		Description: "Added OBS symbol bridging functions",
		Fixed: func(text string) bool {
			return strings.Contains(text, "obs_register_source_s")
		},
		Rewrite: func(text string) (string, bool) {
			return text + bridgingBlock, true
		},
	}
}
