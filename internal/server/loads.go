package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/loads"
	"github.com/wolfeidau/loadboard/internal/models"
)

type assignRequest struct {
	DriverID uuid.UUID `json:"driverId"`
}

type signatureResponse struct {
	Signature *models.Signature `json:"signature"`
	Load      *models.Load      `json:"load"`
}

func (s *Server) registerLoads(mux *http.ServeMux) {
	mux.Handle("GET /v1/loads", handle(s.listLoadsByStatus))
	mux.Handle("GET /v1/orgs/{orgID}/loads", handle(s.listLoads))
	mux.Handle("POST /v1/orgs/{orgID}/loads", handle(s.createLoad))
	mux.Handle("GET /v1/orgs/{orgID}/loads/{loadID}", handle(s.getLoad))
	mux.Handle("PATCH /v1/orgs/{orgID}/loads/{loadID}", handle(s.updateLoad))
	mux.Handle("POST /v1/orgs/{orgID}/loads/{loadID}/assign", handle(s.assignLoad))
	mux.Handle("POST /v1/orgs/{orgID}/loads/{loadID}/transitions/{action}", handle(s.transitionLoad))
	mux.Handle("GET /v1/orgs/{orgID}/loads/{loadID}/signature", handle(s.getSignature))
	mux.Handle("POST /v1/orgs/{orgID}/loads/{loadID}/signature", handle(s.captureSignature))
	mux.Handle("GET /v1/orgs/{orgID}/loads/{loadID}/signature/upload-url", handle(s.signatureUploadURL))
	mux.Handle("GET /v1/orgs/{orgID}/loads/{loadID}/signature/download-url", handle(s.signatureDownloadURL))
	mux.Handle("GET /v1/orgs/{orgID}/loads/{loadID}/events", handle(s.loadEvents))
	mux.Handle("GET /v1/orgs/{orgID}/drivers/{driverID}/loads", handle(s.listDriverLoads))
}

// listFilter reads from, to, status and limit from the query string.
func listFilter(r *http.Request) (loads.ListFilter, error) {
	from, err := queryTime(r, "from", false)
	if err != nil {
		return loads.ListFilter{}, err
	}
	to, err := queryTime(r, "to", true)
	if err != nil {
		return loads.ListFilter{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return loads.ListFilter{}, err
	}
	return loads.ListFilter{From: from, To: to, Status: queryStatus(r), Limit: limit}, nil
}

// queryStatus maps the DRAFT alias onto the stored status. Unknown values
// pass through for the service to reject.
func queryStatus(r *http.Request) models.LoadStatus {
	raw := r.URL.Query().Get("status")
	if st, ok := models.ParseLoadStatus(raw); ok {
		return st
	}
	return models.LoadStatus(raw)
}

func (s *Server) listLoadsByStatus(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	f, err := listFilter(r)
	if err != nil {
		return err
	}
	out, err := s.loads.ListByStatus(r.Context(), id, f.Status, f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) listLoads(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	f, err := listFilter(r)
	if err != nil {
		return err
	}
	out, err := s.loads.ListByOrg(r.Context(), id, orgID, f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) listDriverLoads(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "driverID")
	if err != nil {
		return err
	}
	f, err := listFilter(r)
	if err != nil {
		return err
	}
	out, err := s.loads.ListByDriver(r.Context(), id, ids[0], ids[1], f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) createLoad(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	var in loads.CreateInput
	if err := decode(r, &in); err != nil {
		return err
	}
	load, err := s.loads.Create(r.Context(), id, orgID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, load)
	return nil
}

func (s *Server) getLoad(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	load, err := s.loads.Get(r.Context(), id, ids[0], ids[1])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, load)
	return nil
}

func (s *Server) updateLoad(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	var in loads.UpdateInput
	if err := decode(r, &in); err != nil {
		return err
	}
	load, err := s.loads.Update(r.Context(), id, ids[0], ids[1], in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, load)
	return nil
}

func (s *Server) assignLoad(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	var in assignRequest
	if err := decode(r, &in); err != nil {
		return err
	}
	load, err := s.loads.Assign(r.Context(), id, ids[0], ids[1], in.DriverID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, load)
	return nil
}

func (s *Server) transitionLoad(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	action, err := loads.ParseAction(r.PathValue("action"))
	if err != nil {
		return err
	}

	var in loads.TransitionInput
	if r.ContentLength != 0 {
		if err := decode(r, &in); err != nil {
			return err
		}
	}

	load, err := s.loads.Transition(r.Context(), id, ids[0], ids[1], action, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, load)
	return nil
}

func (s *Server) getSignature(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	sig, err := s.loads.GetSignature(r.Context(), id, ids[0], ids[1])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sig)
	return nil
}

func (s *Server) captureSignature(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	var in loads.SignatureInput
	if err := decode(r, &in); err != nil {
		return err
	}
	sig, load, err := s.loads.CaptureSignature(r.Context(), id, ids[0], ids[1], in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, signatureResponse{Signature: sig, Load: load})
	return nil
}

func (s *Server) signatureUploadURL(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	url, err := s.loads.SignatureUploadURL(r.Context(), id, ids[0], ids[1], r.URL.Query().Get("contentType"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, url)
	return nil
}

func (s *Server) signatureDownloadURL(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	url, err := s.loads.SignatureDownloadURL(r.Context(), id, ids[0], ids[1])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, url)
	return nil
}

func (s *Server) loadEvents(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "loadID")
	if err != nil {
		return err
	}
	events, err := s.loads.Events(r.Context(), id, ids[0], ids[1])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, events)
	return nil
}
