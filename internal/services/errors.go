package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// ErrInstall marks a failed copy of the daemon binary into the base
	// directory. Readiness cannot be reached until it is fixed.
	ErrInstall = errors.New("daemon install failed")
	// ErrInit marks a failed repository initialization.
	ErrInit = errors.New("daemon init failed")
	// ErrIdentityProbe marks a failed `id` probe against an initialized repo.
	ErrIdentityProbe = errors.New("daemon identity probe failed")
	// ErrNoPortAvailable marks an exhausted port range.
	ErrNoPortAvailable = errors.New("no port available")
	// ErrContentAdd marks an add that produced no content identifier.
	ErrContentAdd = errors.New("content add failed")
	// ErrDecode marks a malformed response from the daemon or gateway.
	ErrDecode = errors.New("decode failed")
	// ErrSelfFollow marks a follow of an address owned by a local feed.
	ErrSelfFollow = errors.New("self follow")
	// ErrDirectoryMissing marks a missing feed or repository directory.
	ErrDirectoryMissing = errors.New("directory missing")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err should halt automatic daemon startup until an
// operator intervenes.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInstall)
}

var kinds = []struct {
	marker error
	name   string
}{
	{ErrInstall, "install"},
	{ErrInit, "init"},
	{ErrIdentityProbe, "identity_probe"},
	{ErrNoPortAvailable, "no_port_available"},
	{ErrContentAdd, "content_add"},
	{ErrDecode, "decode"},
	{ErrSelfFollow, "self_follow"},
	{ErrDirectoryMissing, "directory_missing"},
	{ErrValidation, "validation"},
	{ErrConfiguration, "configuration"},
	{ErrNotFound, "not_found"},
	{ErrTimeout, "timeout"},
	{ErrExternalTool, "external_tool"},
	{ErrTransient, "transient"},
}

// Kind returns a short classification label for err, suitable for metric
// labels and API payloads. Unclassified errors report "unknown"; nil reports "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.name
		}
	}
	return "unknown"
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
