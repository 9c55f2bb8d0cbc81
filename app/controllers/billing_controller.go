package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/medisched/medisched/internal/pkg/billing"
	"github.com/medisched/medisched/internal/pkg/usercontext"
)

type BillingController struct {
	sync *billing.Synchronizer
}

func NewBillingController(sync *billing.Synchronizer) *BillingController {
	return &BillingController{sync: sync}
}

type checkoutRequest struct {
	OrganizationID string `json:"organizationId"`
}

func (b *BillingController) HandleCreateCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := parseBody(c, &req); err != nil {
		return renderError(c, err)
	}
	session, err := b.sync.CreateCheckout(c.UserContext(), usercontext.Principal(c), req.OrganizationID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(session)
}

func (b *BillingController) HandleSubscriptionStatus(c *fiber.Ctx) error {
	view, err := b.sync.SubscriptionStatus(c.UserContext(), usercontext.Principal(c), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(view)
}

// HandleWebhook verifies the signature over the raw body, so the body must
// reach this handler unparsed.
func (b *BillingController) HandleWebhook(c *fiber.Ctx) error {
	receipt, err := b.sync.HandleWebhook(c.UserContext(), c.Get(billing.SignatureHeader), c.Body())
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(receipt)
}
