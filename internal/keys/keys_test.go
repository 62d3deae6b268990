package keys

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/loadboard/internal/models"
)

func TestStampOrdersChronologically(t *testing.T) {
	a := time.Date(2025, 1, 9, 23, 59, 59, 999_000_000, time.UTC)
	b := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	require.Less(t, Stamp(a), Stamp(b))

	// offsets are normalised to UTC
	melb := time.FixedZone("AEDT", 11*3600)
	require.Equal(t, Stamp(b), Stamp(b.In(melb)))
}

func TestLoadProjections(t *testing.T) {
	orgID, loadID, driverID := uuid.New(), uuid.New(), uuid.New()
	changed := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	load := &models.Load{ID: loadID, OrgID: orgID, Status: models.LoadStatusDraft, StatusChangedAt: changed}
	p := LoadProjections(load)
	require.Len(t, p, 2)
	require.NotContains(t, p, IndexDriver)
	require.Equal(t, "STATUS#PENDING", p[IndexStatus].PK())
	require.Equal(t, "ORG#"+orgID.String()+"#LOADS", p[IndexOrgDate].PK())
	require.Equal(t, "2025-02-03T04:05:06.000Z#PENDING#"+loadID.String(), p[IndexOrgDate].SK())

	load.Status = models.LoadStatusAssigned
	load.AssignedDriverID = &driverID
	p = LoadProjections(load)
	require.Len(t, p, 3)
	require.Equal(t, DriverPartition(orgID, driverID).PK(), p[IndexDriver].PK())
	require.Equal(t, "STATUS#ASSIGNED", p[IndexStatus].PK())
}

func TestUserProjectionsNormalizeEmail(t *testing.T) {
	u := &models.User{ID: uuid.New(), OrgID: uuid.New(), Email: "  Driver@Example.COM "}
	p := UserProjections(u)
	require.Equal(t, EmailPartition("driver@example.com").PK(), p[IndexEmail].PK())
}

func TestOrgID(t *testing.T) {
	orgID := uuid.New()

	tests := []struct {
		name string
		key  Key
		ok   bool
	}{
		{name: "profile", key: Organization(orgID), ok: true},
		{name: "load", key: Load(orgID, uuid.New()), ok: true},
		{name: "event", key: LoadEvent(orgID, uuid.New(), time.Now(), uuid.New()), ok: true},
		{name: "not org scoped", key: Restore("USER#a@b.c", "ORG#x"), ok: false},
		{name: "bad uuid", key: Restore("ORG#nope", "PROFILE"), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OrgID(tt.key)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, orgID, got)
			}
		})
	}
}

func TestBlobKeyBelongsToOrg(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	loadID := uuid.New()

	for _, key := range []string{SignatureUploadKey(orgA, loadID), SignatureBlobKey(orgA, loadID, uuid.New())} {
		require.True(t, BlobKeyBelongsToOrg(key, orgA))
		require.False(t, BlobKeyBelongsToOrg(key, orgB))
		require.False(t, BlobKeyBelongsToOrg("../"+key, orgA))
	}
}

func TestSignatureBlobKeysAreDistinct(t *testing.T) {
	orgID, loadID := uuid.New(), uuid.New()
	first := SignatureBlobKey(orgID, loadID, uuid.New())
	second := SignatureBlobKey(orgID, loadID, uuid.New())

	require.NotEqual(t, first, second)
	require.NotEqual(t, SignatureUploadKey(orgID, loadID), first)
}

func TestRangeMatch(t *testing.T) {
	tests := []struct {
		name string
		rng  Range
		sk   string
		want bool
	}{
		{name: "all", rng: All(), sk: "anything", want: true},
		{name: "prefix hit", rng: BeginsWith("LOAD#"), sk: "LOAD#1", want: true},
		{name: "prefix miss", rng: BeginsWith("LOAD#"), sk: "USER#1", want: false},
		{name: "prefix longer than key", rng: BeginsWith("LOAD#"), sk: "LOA", want: false},
		{name: "between inclusive low", rng: Between("b", "d"), sk: "b", want: true},
		{name: "between inclusive high", rng: Between("b", "d"), sk: "d", want: true},
		{name: "between above", rng: Between("b", "d"), sk: "da", want: false},
		{name: "since", rng: Since("m"), sk: "z", want: true},
		{name: "until", rng: Until("m"), sk: "z", want: false},
		{name: "byte order, upper before lower", rng: Until("a"), sk: "Z", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.rng.Match(tt.sk))
		})
	}
}

func TestDated(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	id := uuid.NewString()

	rng := Dated(from, to)
	require.True(t, rng.Match(Stamp(from)+"#PENDING#"+id))
	require.True(t, rng.Match(Stamp(to)+"#PENDING#"+id))
	require.False(t, rng.Match(Stamp(to.Add(time.Millisecond))+"#PENDING#"+id))
	require.False(t, rng.Match(Stamp(from.Add(-time.Millisecond))+"#PENDING#"+id))

	require.Equal(t, All(), Dated(time.Time{}, time.Time{}))
	require.True(t, Dated(time.Time{}, to).Match(Stamp(from)))
	require.True(t, Dated(from, time.Time{}).Match(Stamp(to)))
}
