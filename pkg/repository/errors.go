package repository

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrNodeNotFound = status.New(codes.NotFound, "node not found").Err()
var ErrACLNotFound = status.New(codes.NotFound, "access control list not found").Err()
var ErrACLAlreadyExists = status.New(codes.AlreadyExists, "access control list already exists").Err()
var ErrStateConflict = status.New(codes.Aborted, "etag does not match the current state").Err()
