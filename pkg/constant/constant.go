package constant

import "github.com/gofrs/uuid"

// Built-in principals. These UIDs are fixed at bootstrap time and shared by
// every deployment; group membership for them is resolved by the identity
// service, not by this backend.
var (
	// PublicGroupUID is the group every principal, authenticated or not,
	// belongs to. It may only ever hold READ in an ACL.
	PublicGroupUID = uuid.FromStringOrNil("11111111-0000-0000-0000-000000000001")

	// AuthenticatedUsersGroupUID is the group of all signed-in principals.
	AuthenticatedUsersGroupUID = uuid.FromStringOrNil("11111111-0000-0000-0000-000000000002")

	// AnonymousUserUID is the principal requests are attributed to when no
	// credentials are presented. It must never appear in an ACL grant.
	AnonymousUserUID = uuid.FromStringOrNil("11111111-0000-0000-0000-000000000003")

	// CertifiedUsersGroupUID is the group of principals that completed the
	// platform certification quiz.
	CertifiedUsersGroupUID = uuid.FromStringOrNil("11111111-0000-0000-0000-000000000004")

	// AdministratorsGroupUID is the platform operators group.
	AdministratorsGroupUID = uuid.FromStringOrNil("11111111-0000-0000-0000-000000000005")
)

// TrashFolderUID is the benefactor of every entity in the trash can. It is a
// known special case: non-administrators never see trashed entities through
// the bulk visibility filters, even when the UID is queried directly.
var TrashFolderUID = uuid.FromStringOrNil("22222222-0000-0000-0000-000000000001")

// Constants for request headers propagated by the gateway.
const HeaderUserUIDKey = "dv-user-uid"
const HeaderAuthTypeKey = "dv-auth-type"

// DBPinUserKeyFormat is the redis key used to pin a user to the primary
// database after a permission-affecting write.
const DBPinUserKeyFormat = "db_pin_user:%s:%s"

// ChangeFeedChannel is the redis channel entity change messages are published on.
const ChangeFeedChannel = "entity-change-feed"
