package voxelmap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig reports illegal voxel parameters passed to
	// SetVoxelProperties or New.
	ErrInvalidConfig = errors.New("invalid voxel map configuration")

	// ErrEmptyVoxel reports a centroid request on a cell with no points.
	ErrEmptyVoxel = errors.New("voxel has no points")

	// ErrNotInitialized reports a mutation attempted before the map
	// configuration was established.
	ErrNotInitialized = errors.New("voxel map not initialized")

	// ErrReentrantMutation reports a mutation attempted while a
	// VisitAllPoints or VisitAllVoxels traversal is in progress.
	ErrReentrantMutation = errors.New("voxel map mutated during traversal")
)

// CorruptError reports a malformed serialized map stream: a truncated blob,
// an unknown schema version, or a field whose value cannot be valid.
type CorruptError struct {
	Offset int64
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt voxel map stream at offset %d: %s", e.Offset, e.Reason)
}
