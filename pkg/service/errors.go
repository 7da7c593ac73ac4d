package service

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/datavault-ai/entity-backend/pkg/repository"
)

var ErrNoPermission = status.New(codes.PermissionDenied, "The caller does not have permission to execute the specified operation").Err()
var ErrNotFound = status.New(codes.NotFound, "Some requested entity (e.g., node, access control list) was not found").Err()
var ErrInvalidArgument = status.New(codes.InvalidArgument, "invalid argument").Err()

// ErrInvalidACL marks a permanent content failure of a submitted ACL.
var ErrInvalidACL = status.New(codes.InvalidArgument, "the submitted access control list is invalid").Err()

// ErrCertificationRequired is recoverable: the editor can complete the
// certification quiz and resubmit the same ACL.
var ErrCertificationRequired = status.New(codes.FailedPrecondition, "user certification is required to perform this operation").Err()

var ErrAlreadyHasLocalACL = status.New(codes.FailedPrecondition, "entity already has a local access control list").Err()
var ErrAlreadyInheriting = status.New(codes.FailedPrecondition, "entity already inherits its access control list").Err()

// ErrLinkedStorageACL names the linked-storage restriction: inside an
// STS-enabled folder only the root folder itself may carry a local ACL.
var ErrLinkedStorageACL = status.New(codes.FailedPrecondition, "entities within a linked-storage folder cannot override ACL inheritance").Err()

// isDenial separates "authorization said no" from lookup and store failures.
func isDenial(err error) bool {
	return errors.Is(err, ErrNoPermission)
}

// mapNotFound converts store-level not-found sentinels into the service's
// NotFound error so callers need not depend on the repository package.
func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNodeNotFound) || errors.Is(err, repository.ErrACLNotFound) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return err
}
