package metadata

import (
	"errors"
	"fmt"
)

// Error names below match the stable surface callers are expected to
// classify against via errors.Is/errors.As. Each wraps the detail that
// makes the failure actionable: which role, which version, which file.

// ErrVerificationSignatures indicates a metadata object did not collect the
// signature threshold required by its verifying role.
type ErrVerificationSignatures struct {
	Role string
	Msg  string
}

func (e ErrVerificationSignatures) Error() string {
	return fmt.Sprintf("signature verification failed for role %s: %s", e.Role, e.Msg)
}

func (e ErrVerificationSignatures) Is(target error) bool {
	_, ok := target.(ErrVerificationSignatures)
	return ok
}

// ErrVerificationVersion indicates a version number moved backwards, or
// failed to advance, relative to what was previously trusted.
type ErrVerificationVersion struct {
	Role     string
	Got      int64
	Expected int64
}

func (e ErrVerificationVersion) Error() string {
	return fmt.Sprintf("version rollback for role %s: got %d, expected >= %d", e.Role, e.Got, e.Expected)
}

func (e ErrVerificationVersion) Is(target error) bool {
	_, ok := target.(ErrVerificationVersion)
	return ok
}

// ErrVerificationExpired indicates a metadata object's expiry timestamp has
// passed relative to the reference time used for the check.
type ErrVerificationExpired struct {
	Role string
}

func (e ErrVerificationExpired) Error() string {
	return fmt.Sprintf("metadata for role %s has expired", e.Role)
}

func (e ErrVerificationExpired) Is(target error) bool {
	_, ok := target.(ErrVerificationExpired)
	return ok
}

// ErrVerificationFileInfo indicates a fetched document's length or hash did
// not match the FileInfo that referenced it.
type ErrVerificationFileInfo struct {
	Name string
	Msg  string
}

func (e ErrVerificationFileInfo) Error() string {
	return fmt.Sprintf("file info verification failed for %s: %s", e.Name, e.Msg)
}

func (e ErrVerificationFileInfo) Is(target error) bool {
	_, ok := target.(ErrVerificationFileInfo)
	return ok
}

// ErrVerificationUnknownTarget indicates a package's index entry cannot be
// resolved: its targets document does not parse, or its content is
// available neither in the index nor from the selected mirror. A package
// with no entry at all is reported as ErrInvalidPackage.
type ErrVerificationUnknownTarget struct {
	PackageID string
}

func (e ErrVerificationUnknownTarget) Error() string {
	return fmt.Sprintf("package %s is not listed in the index", e.PackageID)
}

func (e ErrVerificationUnknownTarget) Is(target error) bool {
	_, ok := target.(ErrVerificationUnknownTarget)
	return ok
}

// ErrVerificationDeserialization indicates a metadata document could not be
// parsed, or declared a "_type" that did not match the expected role.
type ErrVerificationDeserialization struct {
	Cause error
}

func (e ErrVerificationDeserialization) Error() string {
	return fmt.Sprintf("deserialization error: %v", e.Cause)
}

func (e ErrVerificationDeserialization) Unwrap() error {
	return e.Cause
}

func (e ErrVerificationDeserialization) Is(target error) bool {
	_, ok := target.(ErrVerificationDeserialization)
	return ok
}

// ErrVerificationLoop indicates the bounded refresh loop exhausted its
// restart ceiling without reaching a verified state.
type ErrVerificationLoop struct {
	History []error
}

func (e ErrVerificationLoop) Error() string {
	return fmt.Sprintf("refresh did not converge after %d attempts: %v", len(e.History), e.History)
}

func (e ErrVerificationLoop) Is(target error) bool {
	_, ok := target.(ErrVerificationLoop)
	return ok
}

// ErrRootUpdated signals that root succession ran and moved the trusted
// root forward; the caller should restart its current step against the new
// trusted state rather than treat this as a terminal failure.
type ErrRootUpdated struct {
	FromVersion int64
	ToVersion   int64
}

func (e ErrRootUpdated) Error() string {
	return fmt.Sprintf("root updated from version %d to %d", e.FromVersion, e.ToVersion)
}

func (e ErrRootUpdated) Is(target error) bool {
	_, ok := target.(ErrRootUpdated)
	return ok
}

// ErrInvalidPackage indicates the requested package has no entry at the
// index's deterministic, layout-derived lookup path.
type ErrInvalidPackage struct {
	PackageID string
}

func (e ErrInvalidPackage) Error() string {
	return fmt.Sprintf("invalid package reference: %s", e.PackageID)
}

func (e ErrInvalidPackage) Is(target error) bool {
	_, ok := target.(ErrInvalidPackage)
	return ok
}

// ErrInvalidFileInIndex indicates the index archive itself is malformed:
// an entry missing required fields, a duplicate path, or an unreadable
// archive member. This is a broken local invariant, not a retryable
// verification failure.
type ErrInvalidFileInIndex struct {
	Path string
	Msg  string
}

func (e ErrInvalidFileInIndex) Error() string {
	return fmt.Sprintf("invalid entry %q in index: %s", e.Path, e.Msg)
}

func (e ErrInvalidFileInIndex) Is(target error) bool {
	_, ok := target.(ErrInvalidFileInIndex)
	return ok
}

// ErrLocalFileCorrupted indicates data read back from the local cache does
// not match what was persisted, most likely external tampering or disk
// corruption. This is unchecked/fatal: no amount of retrying the network
// path can repair it.
type ErrLocalFileCorrupted struct {
	Path string
	Msg  string
}

func (e ErrLocalFileCorrupted) Error() string {
	return fmt.Sprintf("local cache file %s is corrupted: %s", e.Path, e.Msg)
}

func (e ErrLocalFileCorrupted) Is(target error) bool {
	_, ok := target.(ErrLocalFileCorrupted)
	return ok
}

// ErrRemote wraps a transport-level failure (HTTP status, timeout,
// connection error) encountered while fetching a document or package.
type ErrRemote struct {
	URL   string
	Cause error
}

func (e ErrRemote) Error() string {
	return fmt.Sprintf("remote fetch of %s failed: %v", e.URL, e.Cause)
}

func (e ErrRemote) Unwrap() error {
	return e.Cause
}

func (e ErrRemote) Is(target error) bool {
	_, ok := target.(ErrRemote)
	return ok
}

// ErrUnsignedMetadata is a lower-level variant of ErrVerificationSignatures
// raised directly by Metadata.Sign when the signer fails; it does not carry
// enough context to name the evaluating role.
type ErrUnsignedMetadata struct {
	Msg string
}

func (e ErrUnsignedMetadata) Error() string {
	return fmt.Sprintf("unsigned metadata error: %s", e.Msg)
}

func (e ErrUnsignedMetadata) Is(target error) bool {
	switch target.(type) {
	case ErrUnsignedMetadata, ErrVerificationSignatures:
		return true
	default:
		return false
	}
}

// ErrLengthOrHashMismatch is a lower-level variant of ErrVerificationFileInfo
// raised by the length/hash verification helpers.
type ErrLengthOrHashMismatch struct {
	Msg string
}

func (e ErrLengthOrHashMismatch) Error() string {
	return fmt.Sprintf("length/hash verification error: %s", e.Msg)
}

func (e ErrLengthOrHashMismatch) Is(target error) bool {
	switch target.(type) {
	case ErrLengthOrHashMismatch, ErrVerificationFileInfo:
		return true
	default:
		return false
	}
}

// ErrValue reports a malformed argument or malformed in-memory value.
type ErrValue struct {
	Msg string
}

func (e ErrValue) Error() string {
	return fmt.Sprintf("value error: %s", e.Msg)
}

// ErrType reports a type mismatch. A metadata document whose declared
// role does not match the generic type it is decoded into is reported as
// ErrVerificationDeserialization instead.
type ErrType struct {
	Msg string
}

func (e ErrType) Error() string {
	return fmt.Sprintf("type error: %s", e.Msg)
}

// ErrRuntime reports an unexpected internal condition not attributable to
// repository data or caller input.
type ErrRuntime struct {
	Msg string
}

func (e ErrRuntime) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Msg)
}

// IsVerificationFailure reports whether err is one of the checked
// verification failures that the refresh loop treats as a signal to run
// root succession and retry, rather than a fatal or purely transport error.
func IsVerificationFailure(err error) bool {
	switch {
	case errors.As(err, &ErrVerificationSignatures{}):
	case errors.As(err, &ErrVerificationVersion{}):
	case errors.As(err, &ErrVerificationExpired{}):
	case errors.As(err, &ErrVerificationFileInfo{}):
	case errors.As(err, &ErrVerificationDeserialization{}):
	default:
		return false
	}
	return true
}

// IsFatal reports whether err reflects a broken local invariant that no
// amount of retrying the network path can repair.
func IsFatal(err error) bool {
	return errors.As(err, &ErrLocalFileCorrupted{}) || errors.As(err, &ErrInvalidFileInIndex{})
}
