// Package keys builds the composite keys used by the single-table store.
//
// Every row is addressed by a (partition key, sort key) pair and may project
// itself into up to four secondary indexes:
//
//	primary  ORG#<org>              <KIND>#<id>
//	GSI1     USER#<email>           ORG#<org>                       user lookup by email
//	GSI2     STATUS#<status>        <date>#ORG#<org>#LOAD#<id>      cross-org status queries
//	GSI3     ORG#<org>#LOADS        <date>#<status>#<id>            org loads by date and status
//	GSI4     ORG#<org>#DRIVER#<id>  <date>#<id>                     loads for a driver
//
// Partition keys always start with the owning organization except for GSI1 and
// GSI2. Callers never concatenate key strings themselves; they use the
// constructors in this package.
package keys

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/loadboard/internal/models"
)

// Index names a key projection of the table.
type Index string

const (
	Primary      Index = ""
	IndexEmail   Index = "GSI1"
	IndexStatus  Index = "GSI2"
	IndexOrgDate Index = "GSI3"
	IndexDriver  Index = "GSI4"
)

const (
	orgPrefix        = "ORG#"
	sep              = "#"
	profileSortKey   = "PROFILE"
	signatureSortKey = "SIGNATURE"
)

// SecondaryIndexes lists the global secondary indexes in table order.
func SecondaryIndexes() []Index {
	return []Index{IndexEmail, IndexStatus, IndexOrgDate, IndexDriver}
}

// Key is an opaque (partition, sort) key pair.
type Key struct {
	pk string
	sk string
}

// PK returns the partition key.
func (k Key) PK() string { return k.pk }

// SK returns the sort key.
func (k Key) SK() string { return k.sk }

// IsZero returns true for the zero Key.
func (k Key) IsZero() bool { return k.pk == "" && k.sk == "" }

func (k Key) String() string { return k.pk + "|" + k.sk }

// Restore rebuilds a key that was previously produced by this package and read
// back from a storage backend.
func Restore(pk, sk string) Key {
	return Key{pk: pk, sk: sk}
}

// Projections holds the secondary index keys of a row. Absent indexes are not
// projected, which removes the row from that index.
type Projections map[Index]Key

// Partition is a partition key bound to the index it belongs to.
type Partition struct {
	index Index
	pk    string
}

// Index returns the index the partition belongs to.
func (p Partition) Index() Index { return p.index }

// PK returns the partition key value.
func (p Partition) PK() string { return p.pk }

func orgPK(orgID uuid.UUID) string {
	return orgPrefix + orgID.String()
}

// Stamp formats t so lexical order matches chronological order.
func Stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// NormalizeEmail lower-cases and trims an email for index lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OrgID extracts the owning organization from an org-scoped partition key.
func OrgID(k Key) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(k.pk, orgPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, _, _ := strings.Cut(rest, sep)
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

// Organization is the key of an organization profile row.
func Organization(orgID uuid.UUID) Key {
	return Key{pk: orgPK(orgID), sk: profileSortKey}
}

// User is the key of a user row.
func User(orgID, userID uuid.UUID) Key {
	return Key{pk: orgPK(orgID), sk: "USER#" + userID.String()}
}

// UserProjections indexes a user by email.
func UserProjections(u *models.User) Projections {
	return Projections{
		IndexEmail: {pk: "USER#" + NormalizeEmail(u.Email), sk: orgPK(u.OrgID)},
	}
}

// Load is the key of a load row.
func Load(orgID, loadID uuid.UUID) Key {
	return Key{pk: orgPK(orgID), sk: "LOAD#" + loadID.String()}
}

// LoadProjections computes the status, org-date and driver index keys of a
// load. It must be recomputed whenever status or driver change.
func LoadProjections(l *models.Load) Projections {
	date := Stamp(l.StatusChangedAt)
	p := Projections{
		IndexStatus: {
			pk: "STATUS#" + string(l.Status),
			sk: strings.Join([]string{date, "ORG", l.OrgID.String(), "LOAD", l.ID.String()}, sep),
		},
		IndexOrgDate: {
			pk: orgPK(l.OrgID) + "#LOADS",
			sk: strings.Join([]string{date, string(l.Status), l.ID.String()}, sep),
		},
	}
	if l.AssignedDriverID != nil {
		p[IndexDriver] = Key{
			pk: driverPK(l.OrgID, *l.AssignedDriverID),
			sk: date + sep + l.ID.String(),
		}
	}
	return p
}

func driverPK(orgID, driverID uuid.UUID) string {
	return orgPK(orgID) + "#DRIVER#" + driverID.String()
}

func loadPK(orgID, loadID uuid.UUID) string {
	return orgPK(orgID) + "#LOAD#" + loadID.String()
}

// Signature is the key of the single signature row of a load.
func Signature(orgID, loadID uuid.UUID) Key {
	return Key{pk: loadPK(orgID, loadID), sk: signatureSortKey}
}

// LoadEvent is the key of an audit event row. Events sort by timestamp and
// then by their time-ordered id.
func LoadEvent(orgID, loadID uuid.UUID, ts time.Time, eventID uuid.UUID) Key {
	return Key{pk: loadPK(orgID, loadID), sk: "EVENT#" + Stamp(ts) + sep + eventID.String()}
}

// Trailer is the key of a trailer row.
func Trailer(orgID, id uuid.UUID) Key {
	return Key{pk: orgPK(orgID), sk: "TRAILER#" + id.String()}
}

// Dock is the key of a dock row.
func Dock(orgID, id uuid.UUID) Key {
	return Key{pk: orgPK(orgID), sk: "DOCK#" + id.String()}
}

// DockYard is the key of a dock yard row.
func DockYard(orgID, id uuid.UUID) Key {
	return Key{pk: orgPK(orgID), sk: "DOCKYARD#" + id.String()}
}

// OrgPartition is the primary partition holding an organization's rows.
func OrgPartition(orgID uuid.UUID) Partition {
	return Partition{index: Primary, pk: orgPK(orgID)}
}

// LoadPartition is the primary partition holding a load's signature and events.
func LoadPartition(orgID, loadID uuid.UUID) Partition {
	return Partition{index: Primary, pk: loadPK(orgID, loadID)}
}

// EmailPartition is the GSI1 partition for a user email.
func EmailPartition(email string) Partition {
	return Partition{index: IndexEmail, pk: "USER#" + NormalizeEmail(email)}
}

// StatusPartition is the GSI2 partition for a load status across all orgs.
func StatusPartition(status models.LoadStatus) Partition {
	return Partition{index: IndexStatus, pk: "STATUS#" + string(status)}
}

// OrgLoadsPartition is the GSI3 partition for an organization's loads.
func OrgLoadsPartition(orgID uuid.UUID) Partition {
	return Partition{index: IndexOrgDate, pk: orgPK(orgID) + "#LOADS"}
}

// DriverPartition is the GSI4 partition for a driver's loads.
func DriverPartition(orgID, driverID uuid.UUID) Partition {
	return Partition{index: IndexDriver, pk: driverPK(orgID, driverID)}
}

// Kind prefixes of rows within an org partition.
const (
	KindUser     = "USER#"
	KindLoad     = "LOAD#"
	KindTrailer  = "TRAILER#"
	KindDock     = "DOCK#"
	KindDockYard = "DOCKYARD#"
	KindEvent    = "EVENT#"
)

// SignatureUploadKey is where a client uploads a signature image through a
// presigned URL before the signature is captured. Blob keys are namespaced by
// organization as a path prefix.
func SignatureUploadKey(orgID, loadID uuid.UUID) string {
	return fmt.Sprintf("org/%s/loads/%s/signature-upload", orgID, loadID)
}

// SignatureBlobKey is the storage key of a captured signature image. Each
// capture gets its own key, so nothing written later can replace it.
func SignatureBlobKey(orgID, loadID, signatureID uuid.UUID) string {
	return fmt.Sprintf("org/%s/loads/%s/signatures/%s", orgID, loadID, signatureID)
}

// BlobKeyBelongsToOrg reports whether a blob key lives under the org prefix.
func BlobKeyBelongsToOrg(key string, orgID uuid.UUID) bool {
	return strings.HasPrefix(key, "org/"+orgID.String()+"/")
}
