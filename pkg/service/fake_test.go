package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/datavault-ai/entity-backend/pkg/datamodel"
	"github.com/datavault-ai/entity-backend/pkg/notification"
	"github.com/datavault-ai/entity-backend/pkg/repository"
)

// fakeRepository is an in-memory Repository with the same conflict and
// not-found semantics as the gorm implementation. The stateful
// override/restore flows need a store that remembers writes, which is why the
// service tests use it instead of generated mocks.
type fakeRepository struct {
	mu           sync.Mutex
	nodes        map[uuid.UUID]datamodel.Node
	acls         map[uuid.UUID]datamodel.AccessControlList
	requirements []datamodel.AccessRequirement
	approvals    []datamodel.AccessApproval
	pinned       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		nodes: map[uuid.UUID]datamodel.Node{},
		acls:  map[uuid.UUID]datamodel.AccessControlList{},
	}
}

func mustUUID() uuid.UUID {
	u, err := uuid.NewV4()
	if err != nil {
		panic(err)
	}
	return u
}

func (r *fakeRepository) addNode(node datamodel.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node.Etag == "" {
		node.Etag = mustUUID().String()
	}
	r.nodes[node.UID] = node
}

func (r *fakeRepository) addACL(entityUID uuid.UUID, entries ...datamodel.ResourceAccess) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acls[entityUID] = datamodel.AccessControlList{
		EntityUID: entityUID,
		Etag:      mustUUID().String(),
		Entries:   entries,
	}
}

func (r *fakeRepository) addRequirement(req datamodel.AccessRequirement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requirements = append(r.requirements, req)
}

func (r *fakeRepository) addApproval(requirementUID, principalUID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals = append(r.approvals, datamodel.AccessApproval{
		BaseStatic:     datamodel.BaseStatic{UID: mustUUID()},
		RequirementUID: requirementUID,
		PrincipalUID:   principalUID,
	})
}

func (r *fakeRepository) PinUser(ctx context.Context, table string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pinned++
}

func (r *fakeRepository) GetNode(ctx context.Context, nodeUID uuid.UUID) (*datamodel.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[nodeUID]
	if !ok {
		return nil, repository.ErrNodeNotFound
	}
	return &node, nil
}

func (r *fakeRepository) GetBenefactor(ctx context.Context, nodeUID uuid.UUID) (uuid.UUID, error) {
	node, err := r.GetNode(ctx, nodeUID)
	if err != nil {
		return uuid.Nil, err
	}
	return node.BenefactorUID, nil
}

func (r *fakeRepository) GetNodeType(ctx context.Context, nodeUID uuid.UUID) (datamodel.EntityType, error) {
	node, err := r.GetNode(ctx, nodeUID)
	if err != nil {
		return "", err
	}
	return node.NodeType, nil
}

func (r *fakeRepository) GetCreatedBy(ctx context.Context, nodeUID uuid.UUID) (uuid.UUID, error) {
	node, err := r.GetNode(ctx, nodeUID)
	if err != nil {
		return uuid.Nil, err
	}
	return node.CreatedBy, nil
}

func (r *fakeRepository) TouchNode(ctx context.Context, principalUID, nodeUID uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[nodeUID]
	if !ok {
		return "", repository.ErrNodeNotFound
	}
	node.Etag = mustUUID().String()
	r.nodes[nodeUID] = node
	return node.Etag, nil
}

func (r *fakeRepository) SetBenefactor(ctx context.Context, nodeUID, benefactorUID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[nodeUID]
	if !ok {
		return repository.ErrNodeNotFound
	}
	node.BenefactorUID = benefactorUID
	r.nodes[nodeUID] = node
	return nil
}

func (r *fakeRepository) ListProjectUIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uids := []uuid.UUID{}
	for _, node := range r.nodes {
		if node.NodeType == datamodel.EntityTypeProject && node.BenefactorUID != trashUID {
			uids = append(uids, node.UID)
		}
	}
	return uids, nil
}

func (r *fakeRepository) GetACL(ctx context.Context, entityUID uuid.UUID) (*datamodel.AccessControlList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acl, ok := r.acls[entityUID]
	if !ok {
		return nil, repository.ErrACLNotFound
	}
	return &acl, nil
}

func (r *fakeRepository) CreateACL(ctx context.Context, acl *datamodel.AccessControlList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acls[acl.EntityUID]; ok {
		return repository.ErrACLAlreadyExists
	}
	acl.Etag = mustUUID().String()
	r.acls[acl.EntityUID] = *acl
	return nil
}

func (r *fakeRepository) UpdateACL(ctx context.Context, acl *datamodel.AccessControlList) (*datamodel.AccessControlList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.acls[acl.EntityUID]
	if !ok {
		return nil, repository.ErrACLNotFound
	}
	if stored.Etag != acl.Etag {
		return nil, repository.ErrStateConflict
	}
	updated := *acl
	updated.Etag = mustUUID().String()
	r.acls[acl.EntityUID] = updated
	return &updated, nil
}

func (r *fakeRepository) DeleteACL(ctx context.Context, entityUID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.acls[entityUID]; !ok {
		return repository.ErrACLNotFound
	}
	delete(r.acls, entityUID)
	return nil
}

func aclGrantsRead(acl datamodel.AccessControlList, principalUIDs []uuid.UUID) bool {
	principals := map[uuid.UUID]bool{}
	for _, p := range principalUIDs {
		principals[p] = true
	}
	granted := acl.AccessTypesFor(principals)
	return granted[datamodel.AccessTypeRead]
}

func (r *fakeRepository) GetAccessibleBenefactors(ctx context.Context, principalUIDs, benefactorUIDs []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	accessible := []uuid.UUID{}
	for _, benefactorUID := range benefactorUIDs {
		acl, ok := r.acls[benefactorUID]
		if ok && aclGrantsRead(acl, principalUIDs) {
			accessible = append(accessible, benefactorUID)
		}
	}
	return accessible, nil
}

func (r *fakeRepository) GetNonVisibleChildrenOfEntity(ctx context.Context, principalUIDs []uuid.UUID, parentUID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nonvisible := []uuid.UUID{}
	for _, node := range r.nodes {
		if !node.ParentUID.Valid || node.ParentUID.UUID != parentUID {
			continue
		}
		acl, ok := r.acls[node.BenefactorUID]
		if !ok || !aclGrantsRead(acl, principalUIDs) {
			nonvisible = append(nonvisible, node.UID)
		}
	}
	return nonvisible, nil
}

func (r *fakeRepository) GetAccessibleProjectUIDs(ctx context.Context, principalUIDs []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uids := []uuid.UUID{}
	for _, node := range r.nodes {
		if node.NodeType != datamodel.EntityTypeProject || node.BenefactorUID == trashUID {
			continue
		}
		acl, ok := r.acls[node.BenefactorUID]
		if ok && aclGrantsRead(acl, principalUIDs) {
			uids = append(uids, node.UID)
		}
	}
	return uids, nil
}

func (r *fakeRepository) GetAllUnmetAccessRequirements(ctx context.Context, subjectUIDs []uuid.UUID, subjectType datamodel.SubjectType, principalUIDs []uuid.UUID, accessTypes []datamodel.AccessType) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subjects := map[uuid.UUID]bool{}
	for _, s := range subjectUIDs {
		subjects[s] = true
	}
	principals := map[uuid.UUID]bool{}
	for _, p := range principalUIDs {
		principals[p] = true
	}
	gated := map[datamodel.AccessType]bool{}
	for _, t := range accessTypes {
		gated[t] = true
	}

	unmet := []uuid.UUID{}
	for _, req := range r.requirements {
		if !gated[req.AccessType] {
			continue
		}
		applies := false
		for _, subject := range req.Subjects {
			if subject.SubjectType == subjectType && subjects[subject.SubjectUID] {
				applies = true
			}
		}
		if !applies {
			continue
		}
		approved := false
		for _, approval := range r.approvals {
			if approval.RequirementUID == req.UID && principals[approval.PrincipalUID] {
				approved = true
			}
		}
		if !approved {
			unmet = append(unmet, req.UID)
		}
	}
	return unmet, nil
}

type fakeChangeSink struct {
	mu       sync.Mutex
	messages []notification.ChangeMessage
	fail     bool
}

func (s *fakeChangeSink) SendMessageAfterCommit(ctx context.Context, msg notification.ChangeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("change feed unavailable")
	}
	s.messages = append(s.messages, msg)
	return nil
}

type statsCall struct {
	PrincipalUID uuid.UUID
	EntityUID    uuid.UUID
}

type fakeStatsSink struct {
	mu    sync.Mutex
	calls []statsCall
}

func (s *fakeStatsSink) UpdateProjectStats(ctx context.Context, principalUID, entityUID uuid.UUID, objectType string, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, statsCall{PrincipalUID: principalUID, EntityUID: entityUID})
	return nil
}

func (s *fakeStatsSink) Close() {}
