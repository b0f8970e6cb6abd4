package controller

import (
	"errors"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tickethub_backend/internals/features/users/dto"
	"tickethub_backend/internals/features/users/service"
	helper "tickethub_backend/internals/helpers"
)

var validate = validator.New()

type AuthController struct {
	Keys *service.KeyService
}

func NewAuthController(keys *service.KeyService) *AuthController {
	return &AuthController{Keys: keys}
}

func (ctrl *AuthController) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	user, err := ctrl.Keys.Register(c.UserContext(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return helper.JsonError(c, fiber.StatusConflict, "Email is already registered")
		}
		log.Printf("[ERROR] register: %v", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Registration failed")
	}
	return helper.JsonCreated(c, "Account activated", fiber.Map{
		"user_id": user.UserID,
		"email":   user.UserEmail,
	})
}

func (ctrl *AuthController) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	token, expires, err := ctrl.Keys.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Invalid email or password")
		}
		log.Printf("[ERROR] login: %v", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Login failed")
	}
	return helper.JsonOK(c, "Logged in", dto.AuthResponse{Token: token, ExpiresAt: expires})
}

func (ctrl *AuthController) Logout(c *fiber.Ctx) error {
	tokenID, _ := c.Locals("token_id").(string)
	if tokenID != "" {
		ctrl.Keys.Logout(c.UserContext(), tokenID)
	}
	return helper.JsonOK(c, "Logged out", nil)
}

func (ctrl *AuthController) ChangePassword(c *fiber.Ctx) error {
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		return helper.JsonValidationError(c, err)
	}

	userIDStr, _ := c.Locals("user_id").(string)
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return helper.JsonError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	if err := ctrl.Keys.ChangePassword(c.UserContext(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return helper.JsonError(c, fiber.StatusUnauthorized, "Current password is incorrect")
		}
		log.Printf("[ERROR] change password: %v", err)
		return helper.JsonError(c, fiber.StatusInternalServerError, "Password change failed")
	}
	return helper.JsonOK(c, "Password changed; please log in again", nil)
}
