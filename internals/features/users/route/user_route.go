package route

import (
	"github.com/gofiber/fiber/v2"

	userController "tickethub_backend/internals/features/users/controller"
	userService "tickethub_backend/internals/features/users/service"
	"tickethub_backend/internals/middlewares"
)

func AuthPublicRoutes(api fiber.Router, keys *userService.KeyService) {
	ctrl := userController.NewAuthController(keys)

	auth := api.Group("/auth")
	auth.Post("/register", middlewares.LoginRateLimiter(), ctrl.Register)
	auth.Post("/login", middlewares.LoginRateLimiter(), ctrl.Login)
}

func AuthAdminRoutes(api fiber.Router, keys *userService.KeyService) {
	ctrl := userController.NewAuthController(keys)

	auth := api.Group("/auth")
	auth.Post("/logout", ctrl.Logout)
	auth.Post("/change-password", ctrl.ChangePassword)
}
