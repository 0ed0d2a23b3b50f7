package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/SupplierHub/internal/pkg/accounts"
	"github.com/ManuelReschke/SupplierHub/internal/pkg/entitlements"
)

type AccountController struct {
	accounts     *accounts.Service
	entitlements *entitlements.Service
}

func NewAccountController(accountService *accounts.Service, entitlementService *entitlements.Service) *AccountController {
	return &AccountController{accounts: accountService, entitlements: entitlementService}
}

// HandleRegister creates an account and promotes its pending grants.
func (ac *AccountController) HandleRegister(c *fiber.Ctx) error {
	var in accounts.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_request", "Request body could not be parsed")
	}

	result, err := ac.accounts.Register(c.UserContext(), in)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrInvalidAccount):
			return errorResponse(c, fiber.StatusBadRequest, "invalid_account", err.Error())
		case errors.Is(err, accounts.ErrEmailTaken):
			return errorResponse(c, fiber.StatusConflict, "email_taken", "Email is already registered")
		default:
			log.Error().Err(err).Msg("account registration failed")
			return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to register account")
		}
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (ac *AccountController) HandleGetAccount(c *fiber.Ctx) error {
	account, err := ac.accounts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return ac.lookupError(c, err)
	}
	return c.JSON(account)
}

func (ac *AccountController) HandleListSales(c *fiber.Ctx) error {
	account, err := ac.accounts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return ac.lookupError(c, err)
	}
	sales, err := ac.accounts.ListSales(c.UserContext(), account.ID, queryInt(c, "offset", 0), queryInt(c, "limit", 50))
	if err != nil {
		log.Error().Err(err).Str("account_id", account.ID).Msg("listing sales failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load sales")
	}
	return c.JSON(fiber.Map{"sales": sales})
}

func (ac *AccountController) HandleListEntitlements(c *fiber.Ctx) error {
	account, err := ac.accounts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return ac.lookupError(c, err)
	}
	grants, err := ac.entitlements.ListGrants(c.UserContext(), account.ID)
	if err != nil {
		log.Error().Err(err).Str("account_id", account.ID).Msg("listing entitlements failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load entitlements")
	}
	return c.JSON(fiber.Map{"entitlements": grants})
}

func (ac *AccountController) lookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorResponse(c, fiber.StatusNotFound, "account_not_found", "Account not found")
	}
	log.Error().Err(err).Msg("account lookup failed")
	return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
}
