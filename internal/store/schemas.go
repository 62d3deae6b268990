package store

import (
	"time"

	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
)

// Item kinds stored in the shared table.
const (
	KindOrganization = "organization"
	KindUser         = "user"
	KindLoad         = "load"
	KindSignature    = "signature"
	KindLoadEvent    = "load_event"
	KindTrailer      = "trailer"
	KindDock         = "dock"
	KindDockYard     = "dock_yard"
)

var OrganizationSchema = Schema[models.Organization]{
	Kind:  KindOrganization,
	Key:   func(o *models.Organization) keys.Key { return keys.Organization(o.ID) },
	Touch: func(o *models.Organization, t time.Time) { o.UpdatedAt = t },
}

var UserSchema = Schema[models.User]{
	Kind:    KindUser,
	Key:     func(u *models.User) keys.Key { return keys.User(u.OrgID, u.ID) },
	Indexes: keys.UserProjections,
	Touch:   func(u *models.User, t time.Time) { u.UpdatedAt = t },
}

// LoadSchema recomputes the status, org-date and driver projections on every
// write of a load.
var LoadSchema = Schema[models.Load]{
	Kind:    KindLoad,
	Key:     func(l *models.Load) keys.Key { return keys.Load(l.OrgID, l.ID) },
	Indexes: keys.LoadProjections,
	Touch:   func(l *models.Load, t time.Time) { l.UpdatedAt = t },
}

var SignatureSchema = Schema[models.Signature]{
	Kind:  KindSignature,
	Key:   func(s *models.Signature) keys.Key { return keys.Signature(s.OrgID, s.LoadID) },
	Touch: func(s *models.Signature, t time.Time) { s.UpdatedAt = t },
}

// LoadEventSchema never touches the event: its timestamp is part of the key.
var LoadEventSchema = Schema[models.LoadEvent]{
	Kind: KindLoadEvent,
	Key: func(e *models.LoadEvent) keys.Key {
		return keys.LoadEvent(e.OrgID, e.LoadID, e.Timestamp, e.ID)
	},
	Touch: func(*models.LoadEvent, time.Time) {},
}

var TrailerSchema = Schema[models.Trailer]{
	Kind:  KindTrailer,
	Key:   func(v *models.Trailer) keys.Key { return keys.Trailer(v.OrgID, v.ID) },
	Touch: func(v *models.Trailer, t time.Time) { v.UpdatedAt = t },
}

var DockSchema = Schema[models.Dock]{
	Kind:  KindDock,
	Key:   func(v *models.Dock) keys.Key { return keys.Dock(v.OrgID, v.ID) },
	Touch: func(v *models.Dock, t time.Time) { v.UpdatedAt = t },
}

var DockYardSchema = Schema[models.DockYard]{
	Kind:  KindDockYard,
	Key:   func(v *models.DockYard) keys.Key { return keys.DockYard(v.OrgID, v.ID) },
	Touch: func(v *models.DockYard, t time.Time) { v.UpdatedAt = t },
}
