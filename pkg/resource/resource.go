package resource

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// GetRequestSingleHeader gets a header value from the request metadata.
func GetRequestSingleHeader(ctx context.Context, header string) string {
	metaHeader := metadata.ValueFromIncomingContext(ctx, strings.ToLower(header))
	if len(metaHeader) != 1 {
		return ""
	}
	return metaHeader[0]
}
