package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/fleet"
)

// assetRoutes binds the CRUD operations of one fleet asset kind.
type assetRoutes[In, View any] struct {
	create func(ctx context.Context, id *auth.Identity, orgID uuid.UUID, in In) (View, error)
	get    func(ctx context.Context, id *auth.Identity, orgID, assetID uuid.UUID) (View, error)
	list   func(ctx context.Context, id *auth.Identity, orgID uuid.UUID) ([]View, error)
	update func(ctx context.Context, id *auth.Identity, orgID, assetID uuid.UUID, in In) (View, error)
	delete func(ctx context.Context, id *auth.Identity, orgID, assetID uuid.UUID) error
}

func (s *Server) registerFleet(mux *http.ServeMux) {
	registerAssets(mux, "trailers", assetRoutes[fleet.TrailerInput, *fleet.TrailerView]{
		create: s.fleet.CreateTrailer,
		get:    s.fleet.GetTrailer,
		list:   s.fleet.ListTrailers,
		update: s.fleet.UpdateTrailer,
		delete: s.fleet.DeleteTrailer,
	})
	registerAssets(mux, "docks", assetRoutes[fleet.DockInput, *fleet.DockView]{
		create: s.fleet.CreateDock,
		get:    s.fleet.GetDock,
		list:   s.fleet.ListDocks,
		update: s.fleet.UpdateDock,
		delete: s.fleet.DeleteDock,
	})
	registerAssets(mux, "dockyards", assetRoutes[fleet.DockYardInput, *fleet.DockYardView]{
		create: s.fleet.CreateDockYard,
		get:    s.fleet.GetDockYard,
		list:   s.fleet.ListDockYards,
		update: s.fleet.UpdateDockYard,
		delete: s.fleet.DeleteDockYard,
	})
}

func registerAssets[In, View any](mux *http.ServeMux, name string, a assetRoutes[In, View]) {
	collection := "/v1/orgs/{orgID}/" + name
	item := collection + "/{assetID}"

	mux.Handle("GET "+collection, handle(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
		orgID, err := pathID(r, "orgID")
		if err != nil {
			return err
		}
		out, err := a.list(r.Context(), id, orgID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, out)
		return nil
	}))

	mux.Handle("POST "+collection, handle(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
		orgID, err := pathID(r, "orgID")
		if err != nil {
			return err
		}
		var in In
		if err := decode(r, &in); err != nil {
			return err
		}
		out, err := a.create(r.Context(), id, orgID, in)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, out)
		return nil
	}))

	mux.Handle("GET "+item, handle(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
		ids, err := pathIDs(r, "orgID", "assetID")
		if err != nil {
			return err
		}
		out, err := a.get(r.Context(), id, ids[0], ids[1])
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, out)
		return nil
	}))

	mux.Handle("PUT "+item, handle(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
		ids, err := pathIDs(r, "orgID", "assetID")
		if err != nil {
			return err
		}
		var in In
		if err := decode(r, &in); err != nil {
			return err
		}
		out, err := a.update(r.Context(), id, ids[0], ids[1], in)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, out)
		return nil
	}))

	mux.Handle("DELETE "+item, handle(func(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
		ids, err := pathIDs(r, "orgID", "assetID")
		if err != nil {
			return err
		}
		if err := a.delete(r.Context(), id, ids[0], ids[1]); err != nil {
			return err
		}
		writeJSON(w, http.StatusNoContent, nil)
		return nil
	}))
}
