package bootstrap

import (
	"context"

	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

// builtinProviders returns the providers shipped with the service. Fixed ids
// keep accounts attached across reseeds.
func builtinProviders() []*models.Provider {
	return []*models.Provider{
		models.NewBuiltinProvider(
			"anyrouter",
			"AnyRouter",
			"https://anyrouter.top",
			"/login",
			"/api/user/checkin",
			"/api/user/self",
			"/api/token/",
			"/api/user/models",
			"new-api-user",
			models.BypassWafCookies,
			true,  // supports check-in
			false, // check-in works
		),
		models.NewBuiltinProvider(
			"agentrouter",
			"AgentRouter",
			"https://agentrouter.org",
			"/login",
			"/api/user/checkin",
			"/api/user/self",
			"/api/token/",
			"/api/user/models",
			"new-api-user",
			"",
			true, // supports check-in
			true, // upstream check-in endpoint is currently broken
		),
	}
}

// SeedBuiltinProviders inserts any bundled provider that is not in the
// repository yet. Existing rows, builtin or user-created, are never touched,
// so reseeding cannot overwrite local changes.
func SeedBuiltinProviders(ctx context.Context, providers repository.ProviderRepository) (int, error) {
	seeded := 0
	for _, builtin := range builtinProviders() {
		existing, err := providers.FindByID(ctx, builtin.ID)
		if err != nil && !utils.IsKind(err, utils.KindProviderNotFound) {
			return seeded, err
		}
		if existing != nil {
			continue
		}

		if err := providers.Save(ctx, builtin); err != nil {
			return seeded, err
		}
		seeded++
		logger.Info("seeded builtin provider", "id", builtin.ID, "name", builtin.Name)
	}
	return seeded, nil
}
