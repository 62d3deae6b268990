package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/fleet"
	"github.com/wolfeidau/loadboard/internal/loads"
	"github.com/wolfeidau/loadboard/internal/logger"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/orgs"
	"github.com/wolfeidau/loadboard/internal/store"
)

// SeedCmd loads a YAML fixture of organizations, users, fleet assets and
// loads through the service layer.
type SeedCmd struct {
	File  string     `arg:"" help:"YAML fixture file" type:"existingfile"`
	Store StoreFlags `embed:"" prefix:"store-"`
	AWS   AWSFlags   `embed:"" prefix:"aws-"`
}

func (c *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Store.Type == "memory" {
		log.Warn().Msg("Seeding the in-memory store only validates the fixture")
	}

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	fixture, err := parseFixture(f)
	if err != nil {
		return err
	}

	table, closeTable, err := openTable(ctx, &c.Store, &c.AWS)
	if err != nil {
		return err
	}
	defer closeTable()

	summary, err := newSeeder(table).seed(ctx, fixture)
	if err != nil {
		return err
	}

	log.Info().
		Int("organizations", summary.Organizations).
		Int("users", summary.Users).
		Int("assets", summary.Assets).
		Int("loads", summary.Loads).
		Msg("Seed complete")
	return nil
}

type seedFixture struct {
	Organizations []seedOrganization `yaml:"organizations"`
}

type seedOrganization struct {
	Name         string         `yaml:"name"`
	LegalName    string         `yaml:"legalName"`
	ContactEmail string         `yaml:"contactEmail"`
	ReplyToEmail string         `yaml:"replyToEmail"`
	Admin        seedUser       `yaml:"admin"`
	Users        []seedUser     `yaml:"users"`
	Trailers     []seedTrailer  `yaml:"trailers"`
	DockYards    []seedDockYard `yaml:"dockYards"`
	Loads        []seedLoad     `yaml:"loads"`
}

type seedUser struct {
	Email string      `yaml:"email"`
	Name  string      `yaml:"name"`
	Role  models.Role `yaml:"role"`
	Phone string      `yaml:"phone"`
}

type seedTrailer struct {
	Number string `yaml:"number"`
	Plate  string `yaml:"plate"`
	Notes  string `yaml:"notes"`
}

type seedDockYard struct {
	Name    string       `yaml:"name"`
	Address *seedAddress `yaml:"address"`
	Docks   []seedDock   `yaml:"docks"`
}

type seedDock struct {
	Name   string `yaml:"name"`
	Door   string `yaml:"door"`
	Active bool   `yaml:"active"`
}

type seedAddress struct {
	Line1      string `yaml:"line1"`
	Line2      string `yaml:"line2"`
	City       string `yaml:"city"`
	Region     string `yaml:"region"`
	PostalCode string `yaml:"postalCode"`
	Country    string `yaml:"country"`
}

func (a *seedAddress) model() *models.Address {
	if a == nil {
		return nil
	}
	return &models.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type seedItem struct {
	SKU         string  `yaml:"sku"`
	Description string  `yaml:"description"`
	Quantity    int     `yaml:"quantity"`
	WeightKg    float64 `yaml:"weightKg"`
}

type seedLoad struct {
	Reference      string      `yaml:"reference"`
	ServiceAddress seedAddress `yaml:"serviceAddress"`
	Items          []seedItem  `yaml:"items"`
	Notes          string      `yaml:"notes"`
	// AssignTo is the email of a driver listed in the same organization.
	AssignTo string `yaml:"assignTo"`
}

func parseFixture(r io.Reader) (*seedFixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fixture seedFixture
	if err := dec.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &fixture, nil
}

type seedSummary struct {
	Organizations int
	Users         int
	Assets        int
	Loads         int
}

type seeder struct {
	orgs  *orgs.Service
	loads *loads.Service
	fleet *fleet.Service
	actor *auth.Identity
}

func newSeeder(table store.Table) *seeder {
	return &seeder{
		orgs:  orgs.NewService(orgs.Config{Table: table}),
		loads: loads.NewService(loads.Config{Table: table}),
		fleet: fleet.NewService(table, nil),
		actor: &auth.Identity{
			SubjectID: "seed",
			Email:     "seed@loadboard.invalid",
			OrgID:     uuid.Nil,
			Role:      models.RoleAdmin,
			Groups:    auth.NewGroupSet(auth.SuperuserGroup),
		},
	}
}

func (s *seeder) seed(ctx context.Context, fixture *seedFixture) (*seedSummary, error) {
	summary := &seedSummary{}

	for _, o := range fixture.Organizations {
		org, admin, err := s.orgs.CreateOrganization(ctx, s.actor, orgs.CreateOrganizationInput{
			Name:         o.Name,
			LegalName:    o.LegalName,
			ContactEmail: o.ContactEmail,
			ReplyToEmail: o.ReplyToEmail,
			Admin:        orgs.AdminInput{Email: o.Admin.Email, Name: o.Admin.Name, Phone: o.Admin.Phone},
		})
		if err != nil {
			return nil, fmt.Errorf("organization %q: %w", o.Name, err)
		}
		summary.Organizations++
		summary.Users++

		drivers := map[string]uuid.UUID{admin.Email: admin.ID}
		for _, u := range o.Users {
			user, err := s.orgs.CreateUser(ctx, s.actor, org.ID, orgs.NewUserInput{
				Email: u.Email, Name: u.Name, Role: u.Role, Phone: u.Phone,
			})
			if err != nil {
				return nil, fmt.Errorf("organization %q user %q: %w", o.Name, u.Email, err)
			}
			drivers[user.Email] = user.ID
			summary.Users++
		}

		for _, t := range o.Trailers {
			if _, err := s.fleet.CreateTrailer(ctx, s.actor, org.ID, fleet.TrailerInput{
				Number: t.Number, Plate: t.Plate, Notes: t.Notes,
			}); err != nil {
				return nil, fmt.Errorf("organization %q trailer %q: %w", o.Name, t.Number, err)
			}
			summary.Assets++
		}

		for _, y := range o.DockYards {
			yard, err := s.fleet.CreateDockYard(ctx, s.actor, org.ID, fleet.DockYardInput{
				Name: y.Name, Address: y.Address.model(),
			})
			if err != nil {
				return nil, fmt.Errorf("organization %q dock yard %q: %w", o.Name, y.Name, err)
			}
			summary.Assets++

			for _, d := range y.Docks {
				if _, err := s.fleet.CreateDock(ctx, s.actor, org.ID, fleet.DockInput{
					YardID: &yard.ID, Name: d.Name, Door: d.Door, Active: d.Active,
				}); err != nil {
					return nil, fmt.Errorf("organization %q dock %q: %w", o.Name, d.Name, err)
				}
				summary.Assets++
			}
		}

		for _, l := range o.Loads {
			if err := s.seedLoad(ctx, org.ID, l, drivers); err != nil {
				return nil, fmt.Errorf("organization %q load %q: %w", o.Name, l.Reference, err)
			}
			summary.Loads++
		}
	}

	return summary, nil
}

func (s *seeder) seedLoad(ctx context.Context, orgID uuid.UUID, l seedLoad, users map[string]uuid.UUID) error {
	items := make([]models.LoadItem, len(l.Items))
	for i, it := range l.Items {
		items[i] = models.LoadItem{SKU: it.SKU, Description: it.Description, Quantity: it.Quantity, WeightKg: it.WeightKg}
	}

	load, err := s.loads.Create(ctx, s.actor, orgID, loads.CreateInput{
		Reference:      l.Reference,
		ServiceAddress: *l.ServiceAddress.model(),
		Items:          items,
		Notes:          l.Notes,
	})
	if err != nil {
		return err
	}

	if l.AssignTo == "" {
		return nil
	}
	driverID, ok := users[l.AssignTo]
	if !ok {
		return fmt.Errorf("assignTo %q is not a user of the organization", l.AssignTo)
	}
	_, err = s.loads.Assign(ctx, s.actor, orgID, load.ID, driverID)
	return err
}
