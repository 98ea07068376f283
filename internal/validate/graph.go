package validate

import "context"

// RemoteChecker is the slice of the graph client the remote check needs.
type RemoteChecker interface {
	EntityExists(ctx context.Context, name string) (bool, error)
}
