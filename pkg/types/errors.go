package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. The structured error types below unwrap to one of these
// so callers can branch with errors.Is.
var (
	ErrSchemaMismatch      = errors.New("annotation columns mismatch")
	ErrTooOld              = errors.New("store is too old for migration")
	ErrUnsupportedVersion  = errors.New("store version is not supported for migration")
	ErrAmbiguousCoordinate = errors.New("ambiguous liftover mapping")
	ErrUnmappedCoordinate  = errors.New("no liftover mapping")
	ErrStoreIO             = errors.New("store i/o failure")

	ErrTooFewSources       = errors.New("at least two stores are required")
	ErrNotResultStore      = errors.New("not a result store")
	ErrNotStoreFile        = errors.New("not a result store file")
	ErrUnknownBuild        = errors.New("source genome should be either hg18 or hg19")
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrDuplicateCheckpoint = errors.New("duplicate checkpoint version")
	ErrInvalidConfig       = errors.New("invalid configuration")
)

// SchemaMismatchError reports that a merge source declares a different set of
// output columns than the first source.
type SchemaMismatchError struct {
	Table   string
	Source  string
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s table) in %s", ErrSchemaMismatch, e.Table, e.Source)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, ": unexpected %s", strings.Join(e.Extra, ", "))
	}
	return b.String()
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// TooOldError reports a store without a version marker.
type TooOldError struct {
	Path string
}

func (e *TooOldError) Error() string {
	return fmt.Sprintf("%s: %s has no %q version marker", ErrTooOld, e.Path, InfoKeyVersion)
}

func (e *TooOldError) Unwrap() error { return ErrTooOld }

// UnsupportedVersionError reports a version marker outside the range the
// migration chain can handle, or one that cannot be parsed.
type UnsupportedVersionError struct {
	Path    string
	Version string
	Oldest  Version
	Latest  Version
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s: %s declares %q, supported range is %s to %s",
		ErrUnsupportedVersion, e.Path, e.Version, e.Oldest, e.Latest)
}

func (e *UnsupportedVersionError) Unwrap() error { return ErrUnsupportedVersion }

// AmbiguousCoordinateError records a coordinate whose liftover produced no
// target interval or more than one.
type AmbiguousCoordinateError struct {
	Table  string
	Column string
	Chrom  string
	Pos    int64
	Hits   int
}

func (e *AmbiguousCoordinateError) Error() string {
	return fmt.Sprintf("%s: %s.%s %s:%d (%d candidates)", ErrAmbiguousCoordinate, e.Table, e.Column, e.Chrom, e.Pos, e.Hits)
}

func (e *AmbiguousCoordinateError) Unwrap() error { return ErrAmbiguousCoordinate }

// UnmappedCoordinateError records a coordinate on a chromosome the chain file
// does not cover.
type UnmappedCoordinateError struct {
	Table  string
	Column string
	Chrom  string
	Pos    int64
}

func (e *UnmappedCoordinateError) Error() string {
	return fmt.Sprintf("%s: %s.%s %s:%d", ErrUnmappedCoordinate, e.Table, e.Column, e.Chrom, e.Pos)
}

func (e *UnmappedCoordinateError) Unwrap() error { return ErrUnmappedCoordinate }

// StoreIOError wraps an underlying file or database failure with the store
// path and the operation that failed.
type StoreIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreIOError) Unwrap() []error { return []error{ErrStoreIO, e.Err} }

// NewStoreIOError returns nil when err is nil so it can wrap call results
// directly.
func NewStoreIOError(path, op string, err error) error {
	if err == nil {
		return nil
	}
	var sio *StoreIOError
	if errors.As(err, &sio) {
		return err
	}
	return &StoreIOError{Path: path, Op: op, Err: err}
}
