package server

import (
	"net/http"

	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/orgs"
)

type createOrganizationResponse struct {
	Organization *models.Organization `json:"organization"`
	Admin        *models.User         `json:"admin"`
}

func (s *Server) registerOrgs(mux *http.ServeMux) {
	mux.Handle("POST /v1/orgs", handle(s.createOrganization))
	mux.Handle("GET /v1/orgs/{orgID}", handle(s.getOrganization))
	mux.Handle("PATCH /v1/orgs/{orgID}", handle(s.updateOrganization))
	mux.Handle("POST /v1/orgs/{orgID}/suspend", handle(s.suspendOrganization))
	mux.Handle("POST /v1/orgs/{orgID}/reactivate", handle(s.reactivateOrganization))

	mux.Handle("GET /v1/orgs/{orgID}/users", handle(s.listUsers))
	mux.Handle("POST /v1/orgs/{orgID}/users", handle(s.createUser))
	mux.Handle("GET /v1/orgs/{orgID}/users/{userID}", handle(s.getUser))
	mux.Handle("PATCH /v1/orgs/{orgID}/users/{userID}", handle(s.updateUser))
	mux.Handle("POST /v1/orgs/{orgID}/users/{userID}/disable", handle(s.disableUser))
	mux.Handle("GET /v1/users/lookup", handle(s.lookupUser))
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	var in orgs.CreateOrganizationInput
	if err := decode(r, &in); err != nil {
		return err
	}
	org, admin, err := s.orgs.CreateOrganization(r.Context(), id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, createOrganizationResponse{Organization: org, Admin: admin})
	return nil
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	org, err := s.orgs.GetOrganization(r.Context(), id, orgID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, org)
	return nil
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	var in orgs.UpdateOrganizationInput
	if err := decode(r, &in); err != nil {
		return err
	}
	org, err := s.orgs.UpdateOrganization(r.Context(), id, orgID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, org)
	return nil
}

func (s *Server) suspendOrganization(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	org, err := s.orgs.SuspendOrganization(r.Context(), id, orgID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, org)
	return nil
}

func (s *Server) reactivateOrganization(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	org, err := s.orgs.ReactivateOrganization(r.Context(), id, orgID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, org)
	return nil
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	users, err := s.orgs.ListUsers(r.Context(), id, orgID, models.Role(r.URL.Query().Get("role")))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, users)
	return nil
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	orgID, err := pathID(r, "orgID")
	if err != nil {
		return err
	}
	var in orgs.NewUserInput
	if err := decode(r, &in); err != nil {
		return err
	}
	user, err := s.orgs.CreateUser(r.Context(), id, orgID, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, user)
	return nil
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "userID")
	if err != nil {
		return err
	}
	user, err := s.orgs.GetUser(r.Context(), id, ids[0], ids[1])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, user)
	return nil
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "userID")
	if err != nil {
		return err
	}
	var in orgs.UpdateUserInput
	if err := decode(r, &in); err != nil {
		return err
	}
	user, err := s.orgs.UpdateUser(r.Context(), id, ids[0], ids[1], in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, user)
	return nil
}

func (s *Server) disableUser(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	ids, err := pathIDs(r, "orgID", "userID")
	if err != nil {
		return err
	}
	user, err := s.orgs.DisableUser(r.Context(), id, ids[0], ids[1])
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, user)
	return nil
}

func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request, id *auth.Identity) error {
	user, err := s.orgs.LookupUserByEmail(r.Context(), id, r.URL.Query().Get("email"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, user)
	return nil
}
