package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/internal/pkg/apperrors"
	"github.com/medisched/medisched/internal/pkg/availability"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

// APIServer implements the ServerInterface. Security is enforced by the
// API key middleware attached in the router, every lookup here is limited
// to the key's organization.
type APIServer struct {
	publisher *availability.Publisher
}

// NewAPIServer creates a new API server instance
func NewAPIServer(publisher *availability.Publisher) *APIServer {
	return &APIServer{publisher: publisher}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetEvents lists the organization's events. available=true drops booked
// and past slots, providerId and departmentId narrow further.
func (s *APIServer) GetEvents(c *fiber.Ctx) error {
	orgID := usercontext.GetUserContext(c).OrganizationID
	if orgID == "" {
		return writeError(c, apperrors.Unauthorized("missing API key"))
	}
	events, err := s.publisher.ListEvents(c.UserContext(), availability.ListFilter{
		OrganizationID: orgID,
		AvailableOnly:  c.QueryBool("available", false),
	})
	if err != nil {
		return writeError(c, err)
	}

	// The organization filter is the security boundary, so the narrower
	// filters are applied on its result instead of replacing it.
	providerID, departmentID := c.Query("providerId"), c.Query("departmentId")
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if providerID != "" && e.ProviderID != providerID {
			continue
		}
		if departmentID != "" && (e.Provider == nil || e.Provider.DepartmentID != departmentID) {
			continue
		}
		out = append(out, e)
	}
	return c.JSON(out)
}

// GetEvent returns a single event of the key's organization. Events of other
// organizations are reported as missing.
func (s *APIServer) GetEvent(c *fiber.Ctx, id string) error {
	orgID := usercontext.GetUserContext(c).OrganizationID
	event, err := s.publisher.GetEvent(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	if orgID == "" || event.Provider == nil || event.Provider.Department == nil ||
		event.Provider.Department.OrganizationID != orgID {
		return writeError(c, apperrors.NotFound("event not found"))
	}
	return c.JSON(event)
}

func writeError(c *fiber.Ctx, err error) error {
	code := apperrors.CodeOf(err)
	return c.Status(apperrors.HTTPStatus(code)).JSON(fiber.Map{
		"error":   code,
		"message": apperrors.PublicMessage(err),
	})
}
