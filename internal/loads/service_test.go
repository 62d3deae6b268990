package loads

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/audit"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/blob"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/notify"
	"github.com/wolfeidau/loadboard/internal/orgs"
	"github.com/wolfeidau/loadboard/internal/store"
	"github.com/wolfeidau/loadboard/internal/store/memory"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.sent...)
}

type fixture struct {
	ctx      context.Context
	svc      *Service
	table    *memory.Table
	blobs    *blob.MemoryStore
	notifier *recordingNotifier

	org1, org2 uuid.UUID
	d1, d2     uuid.UUID

	admin      *auth.Identity
	otherAdmin *auth.Identity
	driver1    *auth.Identity
	driver2    *auth.Identity
	superuser  *auth.Identity
}

func tick(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func identity(subject uuid.UUID, orgID uuid.UUID, role models.Role, groups ...string) *auth.Identity {
	return &auth.Identity{
		SubjectID: subject.String(),
		Email:     subject.String() + "@example.com",
		OrgID:     orgID,
		Role:      role,
		Groups:    auth.NewGroupSet(groups...),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		table:    memory.NewTable(),
		blobs:    blob.NewMemoryStore(),
		notifier: &recordingNotifier{},
		org1:     uuid.New(),
		org2:     uuid.New(),
		d1:       uuid.New(),
		d2:       uuid.New(),
	}
	now := tick(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	f.svc = NewService(Config{
		Table:    f.table,
		Blobs:    f.blobs,
		Notifier: f.notifier,
		Now:      now,
	})

	organizations := store.NewRepository(f.table, store.OrganizationSchema, now)
	require.NoError(t, organizations.Put(f.ctx, &models.Organization{ID: f.org1, Name: "Acme Freight", ContactEmail: "ops@acme.example"}))
	require.NoError(t, organizations.Put(f.ctx, &models.Organization{ID: f.org2, Name: "Globex Haulage"}))

	users := store.NewRepository(f.table, store.UserSchema, now)
	for _, u := range []*models.User{
		{ID: f.d1, OrgID: f.org1, Email: "d1@acme.example", Name: "Dee One", Role: models.RoleDriver},
		{ID: f.d2, OrgID: f.org1, Email: "d2@acme.example", Name: "Dee Two", Role: models.RoleDriver},
	} {
		require.NoError(t, users.Put(f.ctx, u))
	}

	f.admin = identity(uuid.New(), f.org1, models.RoleAdmin)
	f.otherAdmin = identity(uuid.New(), f.org2, models.RoleAdmin)
	f.driver1 = identity(f.d1, f.org1, models.RoleDriver)
	f.driver2 = identity(f.d2, f.org1, models.RoleDriver)
	f.superuser = identity(uuid.New(), f.org2, models.RoleAdmin, auth.SuperuserGroup)

	return f
}

func (f *fixture) createLoad(t *testing.T) *models.Load {
	t.Helper()
	load, err := f.svc.Create(f.ctx, f.admin, f.org1, CreateInput{
		Reference:      "PO-1001",
		ServiceAddress: models.Address{Line1: "1 Dock Rd", City: "Geelong", Country: "AU"},
		Items:          []models.LoadItem{{Description: "pallet", Quantity: 4}},
	})
	require.NoError(t, err)
	return load
}

func (f *fixture) events(t *testing.T, loadID uuid.UUID) []*models.LoadEvent {
	t.Helper()
	events, err := f.svc.Events(f.ctx, f.admin, f.org1, loadID)
	require.NoError(t, err)
	return events
}

// deliveredLoad runs a load through assign, start and deliver.
func (f *fixture) deliveredLoad(t *testing.T) *models.Load {
	t.Helper()
	load := f.createLoad(t)

	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)
	_, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionStart, TransitionInput{})
	require.NoError(t, err)
	load, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionDeliver, TransitionInput{})
	require.NoError(t, err)
	return load
}

func ids(loads []*models.Load) []uuid.UUID {
	out := make([]uuid.UUID, len(loads))
	for i, l := range loads {
		out[i] = l.ID
	}
	return out
}

func TestCreateListedOnlyInOwnOrg(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	require.Equal(t, models.LoadStatusDraft, load.Status)
	require.Equal(t, models.LoadStatus("PENDING"), load.Status)
	require.Equal(t, f.admin.SubjectID, load.CreatedBy)

	listed, err := f.svc.ListByOrg(f.ctx, f.admin, f.org1, ListFilter{})
	require.NoError(t, err)
	require.Contains(t, ids(listed), load.ID)

	listed, err = f.svc.ListByOrg(f.ctx, f.otherAdmin, f.org2, ListFilter{})
	require.NoError(t, err)
	require.NotContains(t, ids(listed), load.ID)

	_, err = f.svc.ListByOrg(f.ctx, f.otherAdmin, f.org1, ListFilter{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	events := f.events(t, load.ID)
	require.Len(t, events, 1)
	require.Equal(t, audit.LoadCreated, events[0].Type)
}

func TestCreateRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(f.ctx, f.driver1, f.org1, CreateInput{
		ServiceAddress: models.Address{Line1: "1 Dock Rd", City: "Geelong"},
	})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Create(f.ctx, f.admin, f.org1, CreateInput{
		Items: []models.LoadItem{{Description: "pallet", Quantity: 0}},
	})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
	fields := apperr.As(err).Fields
	require.Contains(t, fields, "serviceAddress.line1")
	require.Contains(t, fields, "serviceAddress.city")
	require.Contains(t, fields, "items[0].quantity")

	_, err = f.svc.Create(f.ctx, identity(uuid.New(), uuid.New(), models.RoleAdmin), uuid.Nil, CreateInput{})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCreateInSuspendedOrg(t *testing.T) {
	f := newFixture(t)

	orgs := store.NewRepository(f.table, store.OrganizationSchema, nil)
	_, err := orgs.Update(f.ctx, keys.Organization(f.org1), store.Patch{"suspended": true})
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, f.admin, f.org1, CreateInput{
		ServiceAddress: models.Address{Line1: "1 Dock Rd", City: "Geelong"},
	})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestStartWhileDraftIsRejected(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	// the driver is recorded but the load never left the draft state
	loads := store.NewRepository(f.table, store.LoadSchema, nil)
	_, err := loads.Update(f.ctx, keys.Load(f.org1, load.ID), store.Patch{"assignedDriverId": f.d1})
	require.NoError(t, err)

	_, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionStart, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	got, err := f.svc.Get(f.ctx, f.admin, f.org1, load.ID)
	require.NoError(t, err)
	require.Equal(t, models.LoadStatusDraft, got.Status)
	require.Len(t, f.events(t, load.ID), 1)
}

func TestEachTransitionAppendsOneEvent(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	steps := []struct {
		name  string
		run   func() (*models.Load, error)
		event string
		want  models.LoadStatus
	}{
		{
			name:  "assign",
			run:   func() (*models.Load, error) { return f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1) },
			event: audit.LoadAssigned,
			want:  models.LoadStatusAssigned,
		},
		{
			name: "start",
			run: func() (*models.Load, error) {
				return f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionStart, TransitionInput{})
			},
			event: audit.LoadStarted,
			want:  models.LoadStatusInTransit,
		},
		{
			name: "deliver",
			run: func() (*models.Load, error) {
				return f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionDeliver, TransitionInput{})
			},
			event: audit.LoadDelivered,
			want:  models.LoadStatusDelivered,
		},
	}

	for _, step := range steps {
		before := f.events(t, load.ID)

		updated, err := step.run()
		require.NoError(t, err, step.name)
		require.Equal(t, step.want, updated.Status, step.name)

		after := f.events(t, load.ID)
		require.Len(t, after, len(before)+1, step.name)
		require.Equal(t, step.event, after[len(after)-1].Type, step.name)

		stored, err := f.svc.Get(f.ctx, f.admin, f.org1, load.ID)
		require.NoError(t, err)
		require.Equal(t, step.want, stored.Status, step.name)
	}
}

func TestDriverCannotTouchUnassignedLoad(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)
	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)

	_, err = f.svc.Get(f.ctx, f.driver2, f.org1, load.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Transition(f.ctx, f.driver2, f.org1, load.ID, ActionStart, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Events(f.ctx, f.driver2, f.org1, load.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	listed, err := f.svc.ListByOrg(f.ctx, f.driver2, f.org1, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, listed)

	listed, err = f.svc.ListByOrg(f.ctx, f.driver1, f.org1, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{load.ID}, ids(listed))

	_, err = f.svc.ListByDriver(f.ctx, f.driver2, f.org1, f.d1, ListFilter{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.Get(f.ctx, f.driver1, f.org1, load.ID)
	require.NoError(t, err)
	require.Equal(t, load.ID, got.ID)
}

func TestOrgBoundary(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	_, err := f.svc.Get(f.ctx, f.otherAdmin, f.org1, load.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.Get(f.ctx, f.superuser, f.org1, load.ID)
	require.NoError(t, err)
	require.Equal(t, load.ID, got.ID)

	// the load does not exist under the other org's keys
	_, err = f.svc.Get(f.ctx, f.otherAdmin, f.org2, load.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAssignRejected(t *testing.T) {
	f := newFixture(t)

	users := store.NewRepository(f.table, store.UserSchema, nil)
	disabled := &models.User{ID: uuid.New(), OrgID: f.org1, Email: "off@acme.example", Name: "Off", Role: models.RoleDriver, Disabled: true}
	coadmin := &models.User{ID: uuid.New(), OrgID: f.org1, Email: "co@acme.example", Name: "Co", Role: models.RoleCoadmin}
	foreign := &models.User{ID: uuid.New(), OrgID: f.org2, Email: "x@globex.example", Name: "X", Role: models.RoleDriver}
	for _, u := range []*models.User{disabled, coadmin, foreign} {
		require.NoError(t, users.Put(f.ctx, u))
	}

	tests := []struct {
		name     string
		identity *auth.Identity
		driverID uuid.UUID
		want     error
	}{
		{"driver role", f.driver1, f.d1, apperr.ErrForbidden},
		{"disabled driver", f.admin, disabled.ID, apperr.ErrValidationFailed},
		{"not a driver", f.admin, coadmin.ID, apperr.ErrValidationFailed},
		{"driver of another org", f.admin, foreign.ID, apperr.ErrValidationFailed},
		{"unknown user", f.admin, uuid.New(), apperr.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			load := f.createLoad(t)
			_, err := f.svc.Assign(f.ctx, tt.identity, f.org1, load.ID, tt.driverID)
			require.ErrorIs(t, err, tt.want)
			require.Len(t, f.events(t, load.ID), 1)
		})
	}
}

func TestAssignedDriverStaysActive(t *testing.T) {
	f := newFixture(t)
	users := orgs.NewService(orgs.Config{Table: f.table})
	load := f.createLoad(t)
	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)

	_, err = users.UpdateUser(f.ctx, f.admin, f.org1, f.d1, orgs.UpdateUserInput{Role: ptr(models.RoleCoadmin)})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
	require.Contains(t, apperr.As(err).Fields, "role")

	_, err = users.DisableUser(f.ctx, f.admin, f.org1, f.d1)
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
	require.Contains(t, apperr.As(err).Fields, "disabled")

	driver, err := users.GetUser(f.ctx, f.admin, f.org1, f.d1)
	require.NoError(t, err)
	require.True(t, driver.IsActiveDriver())

	// the assigned driver can still work the load
	started, err := f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionStart, TransitionInput{})
	require.NoError(t, err)
	require.True(t, started.AssignedTo(f.d1.String()))

	_, err = f.svc.Transition(f.ctx, f.admin, f.org1, load.ID, ActionCancel, TransitionInput{Reason: "driver leaving"})
	require.NoError(t, err)

	disabled, err := users.DisableUser(f.ctx, f.admin, f.org1, f.d1)
	require.NoError(t, err)
	require.False(t, disabled.IsActiveDriver())

	next := f.createLoad(t)
	_, err = f.svc.Assign(f.ctx, f.admin, f.org1, next.ID, f.d1)
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestReassignMovesDriverIndex(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)

	_, err = f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	updated, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d2)
	require.NoError(t, err)
	require.True(t, updated.AssignedTo(f.d2.String()))

	d1Loads, err := f.svc.ListByDriver(f.ctx, f.admin, f.org1, f.d1, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, d1Loads)

	d2Loads, err := f.svc.ListByDriver(f.ctx, f.driver2, f.org1, f.d2, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{load.ID}, ids(d2Loads))

	events := f.events(t, load.ID)
	last := events[len(events)-1]
	require.Equal(t, audit.LoadAssigned, last.Type)
	require.Equal(t, f.d1.String(), last.Meta["previousDriverId"])

	_, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionStart, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAssignNotifiesDriver(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("queue unavailable")
	load := f.createLoad(t)

	// a failed notification never fails the transition
	updated, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)
	require.Equal(t, models.LoadStatusAssigned, updated.Status)

	sent := f.notifier.messages()
	require.Len(t, sent, 1)
	require.Equal(t, "d1@acme.example", sent[0].To)
	require.Equal(t, notify.TemplateLoadAssigned, sent[0].Template)
	require.Equal(t, load.ID.String(), sent[0].Data["loadId"])
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)
	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)

	_, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionCancel, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	cancelled, err := f.svc.Transition(f.ctx, f.admin, f.org1, load.ID, ActionCancel, TransitionInput{Reason: "customer closed"})
	require.NoError(t, err)
	require.Equal(t, models.LoadStatusCancelled, cancelled.Status)
	require.Equal(t, "customer closed", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.Transition(f.ctx, f.admin, f.org1, load.ID, ActionCancel, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d2)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.Update(f.ctx, f.admin, f.org1, load.ID, UpdateInput{Notes: ptr("late")})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestTransitionRejectsAssignAndUnknown(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	_, err := f.svc.Transition(f.ctx, f.admin, f.org1, load.ID, ActionAssign, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = f.svc.Transition(f.ctx, f.admin, f.org1, load.ID, Action("teleport"), TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestCaptureSignatureCompletesLoad(t *testing.T) {
	f := newFixture(t)
	load := f.deliveredLoad(t)
	image := []byte("\x89PNG signature")
	before := len(f.events(t, load.ID))

	sig, completed, err := f.svc.CaptureSignature(f.ctx, f.driver1, f.org1, load.ID, SignatureInput{
		SignerName:  "Pat Receiver",
		ContentType: "image/png",
		Geo:         &models.GeoPoint{Lat: -38.14, Lng: 144.36},
		Image:       image,
	})
	require.NoError(t, err)
	require.Equal(t, ContentHash(image), sig.ContentHash)
	require.NotEqual(t, uuid.Nil, sig.ID)
	require.Equal(t, keys.SignatureBlobKey(f.org1, load.ID, sig.ID), sig.BlobKey)
	require.Equal(t, models.LoadStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	events := f.events(t, load.ID)
	require.Len(t, events, before+2)
	require.Equal(t, audit.LoadSigned, events[len(events)-2].Type)
	require.Equal(t, audit.LoadCompleted, events[len(events)-1].Type)

	stored, err := f.blobs.Get(f.ctx, sig.BlobKey)
	require.NoError(t, err)
	require.Equal(t, image, stored.Body)

	sent := f.notifier.messages()
	require.Equal(t, notify.TemplateLoadCompleted, sent[len(sent)-1].Template)
	require.Equal(t, "ops@acme.example", sent[len(sent)-1].To)

	url, err := f.svc.SignatureDownloadURL(f.ctx, f.driver1, f.org1, load.ID)
	require.NoError(t, err)
	require.Equal(t, sig.BlobKey, url.Key)
	require.NotEmpty(t, url.URL)

	_, _, err = f.svc.CaptureSignature(f.ctx, f.driver1, f.org1, load.ID, SignatureInput{
		SignerName: "Again", ContentType: "image/png", Image: image,
	})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestCaptureSignatureFromPresignedUpload(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)
	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)

	_, err = f.svc.SignatureUploadURL(f.ctx, f.driver1, f.org1, load.ID, "image/png")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionStart, TransitionInput{})
	require.NoError(t, err)

	_, err = f.svc.SignatureUploadURL(f.ctx, f.driver1, f.org1, load.ID, "text/plain")
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	upload, err := f.svc.SignatureUploadURL(f.ctx, f.driver1, f.org1, load.ID, "image/png")
	require.NoError(t, err)
	require.Equal(t, keys.SignatureUploadKey(f.org1, load.ID), upload.Key)

	_, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionDeliver, TransitionInput{})
	require.NoError(t, err)

	_, _, err = f.svc.CaptureSignature(f.ctx, f.driver1, f.org1, load.ID, SignatureInput{
		SignerName: "Pat Receiver", ContentType: "image/png",
	})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	// the client uploads straight to the blob store
	body := []byte("uploaded image")
	require.NoError(t, f.blobs.Put(f.ctx, upload.Key, body, "image/png"))

	sig, completed, err := f.svc.CaptureSignature(f.ctx, f.driver1, f.org1, load.ID, SignatureInput{
		SignerName: "Pat Receiver", ContentType: "image/png",
	})
	require.NoError(t, err)
	require.Equal(t, ContentHash(body), sig.ContentHash)
	require.Equal(t, models.LoadStatusCompleted, completed.Status)
}

func TestCompleteVerifiesSignature(t *testing.T) {
	f := newFixture(t)
	load := f.deliveredLoad(t)

	_, err := f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionComplete, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	sigID := uuid.New()
	key := keys.SignatureBlobKey(f.org1, load.ID, sigID)
	require.NoError(t, f.blobs.Put(f.ctx, key, []byte("tampered"), "image/png"))

	signatures := store.NewRepository(f.table, store.SignatureSchema, nil)
	require.NoError(t, signatures.Put(f.ctx, &models.Signature{
		ID:          sigID,
		OrgID:       f.org1,
		LoadID:      load.ID,
		SignerName:  "Pat Receiver",
		BlobKey:     key,
		ContentType: "image/png",
		ContentHash: ContentHash([]byte("original")),
	}))

	before := len(f.events(t, load.ID))
	_, err = f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionComplete, TransitionInput{})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	require.Contains(t, apperr.As(err).Message, "hash mismatch")
	require.Len(t, f.events(t, load.ID), before)

	require.NoError(t, f.blobs.Put(f.ctx, key, []byte("original"), "image/png"))
	completed, err := f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionComplete, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, models.LoadStatusCompleted, completed.Status)
	require.Len(t, f.events(t, load.ID), before+1)
}

func TestRecaptureAfterFailedCompletionKeepsEvidence(t *testing.T) {
	f := newFixture(t)
	load := f.deliveredLoad(t)

	// a signature captured earlier whose completion did not go through
	sigID := uuid.New()
	key := keys.SignatureBlobKey(f.org1, load.ID, sigID)
	original := []byte("original")
	require.NoError(t, f.blobs.Put(f.ctx, key, original, "image/png"))
	signatures := store.NewRepository(f.table, store.SignatureSchema, nil)
	require.NoError(t, signatures.Put(f.ctx, &models.Signature{
		ID:          sigID,
		OrgID:       f.org1,
		LoadID:      load.ID,
		SignerName:  "Pat Receiver",
		BlobKey:     key,
		ContentType: "image/png",
		ContentHash: ContentHash(original),
	}))
	before := len(f.events(t, load.ID))

	_, _, err := f.svc.CaptureSignature(f.ctx, f.driver1, f.org1, load.ID, SignatureInput{
		SignerName: "Someone Else", ContentType: "image/png", Image: []byte("forged"),
	})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	require.Contains(t, apperr.As(err).Message, "signature already captured")

	_, err = f.svc.SignatureUploadURL(f.ctx, f.driver1, f.org1, load.ID, "image/png")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	require.Contains(t, apperr.As(err).Message, "signature already captured")

	stored, err := f.blobs.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, original, stored.Body)
	_, err = f.blobs.Get(f.ctx, keys.SignatureUploadKey(f.org1, load.ID))
	require.Error(t, err)
	require.Len(t, f.events(t, load.ID), before)

	completed, err := f.svc.Transition(f.ctx, f.driver1, f.org1, load.ID, ActionComplete, TransitionInput{})
	require.NoError(t, err)
	require.Equal(t, models.LoadStatusCompleted, completed.Status)

	got, err := f.svc.GetSignature(f.ctx, f.admin, f.org1, load.ID)
	require.NoError(t, err)
	require.Equal(t, "Pat Receiver", got.SignerName)
	require.Equal(t, ContentHash(original), got.ContentHash)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	_, err := f.svc.Update(f.ctx, f.admin, f.org1, load.ID, UpdateInput{})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = f.svc.Update(f.ctx, f.driver1, f.org1, load.ID, UpdateInput{Notes: ptr("x")})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	updated, err := f.svc.Update(f.ctx, f.admin, f.org1, load.ID, UpdateInput{
		Notes: ptr("rear entrance"),
		Items: &[]models.LoadItem{{Description: "crate", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "rear entrance", updated.Notes)
	require.Equal(t, "PO-1001", updated.Reference)
	require.Len(t, updated.Items, 1)
	require.Equal(t, models.LoadStatusDraft, updated.Status)

	events := f.events(t, load.ID)
	last := events[len(events)-1]
	require.Equal(t, audit.LoadUpdated, last.Type)
	require.Equal(t, "changed", last.Meta["notes"])
	require.Equal(t, "changed", last.Meta["items"])
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	first := f.createLoad(t)
	second := f.createLoad(t)
	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, second.ID, f.d1)
	require.NoError(t, err)

	all, err := f.svc.ListByOrg(f.ctx, f.admin, f.org1, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{second.ID, first.ID}, ids(all))

	pending, err := f.svc.ListByOrg(f.ctx, f.admin, f.org1, ListFilter{Status: models.LoadStatusDraft})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{first.ID}, ids(pending))

	limited, err := f.svc.ListByOrg(f.ctx, f.admin, f.org1, ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	stored, err := f.svc.Get(f.ctx, f.admin, f.org1, second.ID)
	require.NoError(t, err)
	windowed, err := f.svc.ListByOrg(f.ctx, f.admin, f.org1, ListFilter{From: stored.StatusChangedAt, To: stored.StatusChangedAt})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{second.ID}, ids(windowed))

	_, err = f.svc.ListByOrg(f.ctx, f.admin, f.org1, ListFilter{From: time.Now(), To: time.Now().Add(-time.Hour)})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, err = f.svc.ListByOrg(f.ctx, f.admin, f.org1, ListFilter{Status: "DRAFT"})
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
}

// queryRecorder remembers which partitions were read.
type queryRecorder struct {
	*memory.Table
	mu         sync.Mutex
	partitions []keys.Partition
}

func (r *queryRecorder) Query(ctx context.Context, partition keys.Partition, rng keys.Range, opts store.QueryOptions) ([]*store.Item, error) {
	r.mu.Lock()
	r.partitions = append(r.partitions, partition)
	r.mu.Unlock()
	return r.Table.Query(ctx, partition, rng, opts)
}

func TestListByOrgReadsDriverIndexForDrivers(t *testing.T) {
	f := newFixture(t)
	mine := f.createLoad(t)
	theirs := f.createLoad(t)
	f.createLoad(t)
	_, err := f.svc.Assign(f.ctx, f.admin, f.org1, mine.ID, f.d1)
	require.NoError(t, err)
	_, err = f.svc.Assign(f.ctx, f.admin, f.org1, theirs.ID, f.d2)
	require.NoError(t, err)

	recorder := &queryRecorder{Table: f.table}
	svc := NewService(Config{Table: recorder, Blobs: f.blobs, Notifier: f.notifier})

	tests := []struct {
		name      string
		identity  *auth.Identity
		partition keys.Partition
		want      int
	}{
		{"driver", f.driver1, keys.DriverPartition(f.org1, f.d1), 1},
		{"admin", f.admin, keys.OrgLoadsPartition(f.org1), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder.partitions = nil
			listed, err := svc.ListByOrg(f.ctx, tt.identity, f.org1, ListFilter{})
			require.NoError(t, err)
			require.Len(t, listed, tt.want)
			require.Equal(t, []keys.Partition{tt.partition}, recorder.partitions)
		})
	}

	listed, err := svc.ListByOrg(f.ctx, f.driver1, f.org1, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{mine.ID}, ids(listed))
}

func TestListByStatusIsSuperuserOnly(t *testing.T) {
	f := newFixture(t)
	load := f.createLoad(t)

	_, err := f.svc.ListByStatus(f.ctx, f.admin, models.LoadStatusDraft, ListFilter{})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	listed, err := f.svc.ListByStatus(f.ctx, f.superuser, models.LoadStatusDraft, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{load.ID}, ids(listed))

	_, err = f.svc.Assign(f.ctx, f.admin, f.org1, load.ID, f.d1)
	require.NoError(t, err)

	listed, err = f.svc.ListByStatus(f.ctx, f.superuser, models.LoadStatusDraft, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, listed)

	listed, err = f.svc.ListByStatus(f.ctx, f.superuser, models.LoadStatusAssigned, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{load.ID}, ids(listed))
}

func ptr[T any](v T) *T { return &v }
