package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"minitter/auth"
	"minitter/crud"
	"minitter/http"
)

// main is the app's entry point.
func main() {
	// Check if the flag "-prod" to has been provided. It means that we're running in production.
	productionBool := flag.Bool("prod", false, "Provide this flag in production to ensure that a .config.yaml file is provided before the application starts.")
	resetBool := flag.Bool("reset", false, "Drop and recreate all tables before starting. Refused in production.")
	deleteUser := flag.String("delete-user", "", "Delete the user with this username, along with all their tweets, likes and follows, then exit.")
	flag.Parse()

	// Load configuration from a .config.yaml file if present, otherwise use the default dev setup.
	// If *productionBool evaluates to true, that means we're in production. In that case the
	// .config.yaml file is required and the app will panic if no file is found.
	config := LoadConfig(*productionBool)
	setupLogger(config.Log.Level, config.IsProd())

	// Open a database connection.
	db, err := openDB(config.Database, config.IsProd())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Start the crud services.
	services, err := crud.NewServices(db,
		crud.WithUser(config.Pepper, config.HMACKey),
		crud.WithTweet(),
		crud.WithFollow(),
		crud.WithLike(),
	)
	must(err)
	defer services.Close()

	// Execute migrations.
	if *resetBool {
		if config.IsProd() {
			log.Fatal().Msg("Refusing to reset the production database")
		}
		must(services.DestructiveReset())
		log.Warn().Msg("Database was reset")
	} else {
		must(services.AutoMigrate())
	}

	if *deleteUser != "" {
		must(deleteUserByUsername(context.Background(), services, *deleteUser))
		return
	}

	// Set up a webserver.
	server := http.NewServer(config.IsProd(), config.CSRFKey, auth.NewTokens(config.JWTSecret), services)

	// Serve the app.
	if err := server.Run(config.Port); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server exited")
}

// deleteUserByUsername is the administrative removal of an account.
func deleteUserByUsername(ctx context.Context, services *crud.Services, username string) error {
	user, err := services.User.ByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := services.User.Delete(ctx, user.ID); err != nil {
		return err
	}
	log.Info().Str("username", username).Int("id", user.ID).Msg("Deleted user")
	return nil
}

// must is a little helper for shortening the panic instruction.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
