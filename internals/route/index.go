package route

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tickethub_backend/internals/configs"
	eventRoute "tickethub_backend/internals/features/events/route"
	"tickethub_backend/internals/features/payments/gateway"
	registrationRoute "tickethub_backend/internals/features/registrations/route"
	registrationService "tickethub_backend/internals/features/registrations/service"
	userRoute "tickethub_backend/internals/features/users/route"
	userService "tickethub_backend/internals/features/users/service"
	authMiddleware "tickethub_backend/internals/middlewares/auth"
)

type Deps struct {
	DB            *gorm.DB
	Gateways      *gateway.Registry
	Keys          *userService.KeyService
	Registrations *registrationService.RegistrationService
}

func SetupRoutes(app *fiber.App, deps Deps) {
	// ===================== PUBLIC =====================
	log.Println("[INFO] Setting up PUBLIC group...")
	public := app.Group("/api")

	userRoute.AuthPublicRoutes(public, deps.Keys)
	eventRoute.EventPublicRoutes(public, deps.DB, deps.Gateways)
	registrationRoute.RegistrationPublicRoutes(public, deps.Registrations)

	// ===================== ADMIN =====================
	log.Println("[INFO] Setting up ADMIN group (JWT + session key)...")
	admin := app.Group("/api/a",
		authMiddleware.AuthJWT(configs.JWTSecret, deps.Keys),
	)

	userRoute.AuthAdminRoutes(admin, deps.Keys)
	eventRoute.EventAdminRoutes(admin, deps.DB, deps.Gateways)
	registrationRoute.RegistrationAdminRoutes(admin, deps.DB, deps.Registrations)
}
