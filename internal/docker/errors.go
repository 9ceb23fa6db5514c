package docker

import (
	"errors"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/client"
)

// ErrNotFound indicates the requested Docker resource was not found.
var ErrNotFound = errors.New("docker: resource not found")

// IsNotFound reports whether err means the subject no longer exists. Covers
// our sentinel plus both not-found flavours the SDK can return.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || errdefs.IsNotFound(err) || client.IsErrNotFound(err)
}
