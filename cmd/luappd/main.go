/*
Luappd starts the luapp HTTP service and begins listening for preprocessing
requests.

Usage:

	luappd [flags]

Once started, luappd listens for HTTP requests and responds using the
/jobs and /login routes described in the project's service documentation.
By default it listens on localhost:8080.

If a JWT token secret is not given, one is automatically generated. As a
consequence, in this mode of operation all tokens are rendered invalid as
soon as the server shuts down; this is suitable for testing but a secret
must be given via flag or environment variable in production.

The flags are:

	-l, --listen LISTEN_ADDRESS
	    Listen on the given address. Defaults to environment variable
	    LUAPP_LISTEN_ADDRESS, then localhost:8080.

	-s, --secret TOKEN_SECRET
	    Use the provided secret for signing JWT tokens. Defaults to
	    environment variable LUAPP_TOKEN_SECRET; if unset, a random
	    secret is generated.

	--db PATH
	    Use a sqlite database at PATH to persist job records. Defaults to
	    environment variable LUAPP_DATABASE; if unset, jobs are not
	    persisted across restarts.

	--user USERNAME / --password PASSWORD
	    Credentials for the single account POST /login accepts. Default
	    to LUAPP_USER/LUAPP_PASSWORD, then "admin"/"admin".

	--no-auth
	    Disable the bearer-token requirement on /jobs entirely.
*/
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/pellmont/luapp/internal/runtime"
	"github.com/pellmont/luapp/internal/server"
	"github.com/pellmont/luapp/internal/server/dao/sqlite"
)

const (
	EnvListen   = "LUAPP_LISTEN_ADDRESS"
	EnvSecret   = "LUAPP_TOKEN_SECRET"
	EnvDatabase = "LUAPP_DATABASE"
	EnvUser     = "LUAPP_USER"
	EnvPassword = "LUAPP_PASSWORD"
)

var (
	flagListen   = pflag.StringP("listen", "l", "", "Listen on the given address.")
	flagSecret   = pflag.StringP("secret", "s", "", "Use the given secret for token generation.")
	flagDB       = pflag.String("db", "", "Path to a sqlite database used to persist job records.")
	flagUser     = pflag.String("user", "", "Username accepted by POST /login.")
	flagPassword = pflag.String("password", "", "Password accepted by POST /login.")
	flagNoAuth   = pflag.Bool("no-auth", false, "Disable the bearer-token requirement on /jobs.")
)

func main() {
	pflag.Parse()

	if len(pflag.Args()) > 0 {
		fmt.Fprintf(os.Stderr, "Too many arguments\nDo -h for help.\n")
		os.Exit(1)
	}

	listenAddr := envOr(EnvListen, "localhost:8080")
	if pflag.Lookup("listen").Changed {
		listenAddr = *flagListen
	}

	dbPath := os.Getenv(EnvDatabase)
	if pflag.Lookup("db").Changed {
		dbPath = *flagDB
	}

	username := envOr(EnvUser, "admin")
	if pflag.Lookup("user").Changed {
		username = *flagUser
	}
	password := envOr(EnvPassword, "admin")
	if pflag.Lookup("password").Changed {
		password = *flagPassword
	}

	secret, err := resolveSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("FATAL could not hash password: %s", err)
	}

	cfg := server.Config{
		Username:     username,
		PasswordHash: base64.StdEncoding.EncodeToString(hash),
		Secret:       secret,
		NoAuth:       *flagNoAuth,
	}
	cfg.Driver.Runtime = runtime.Subprocess{}

	if dbPath != "" {
		store, err := sqlite.NewDatastore(dbPath)
		if err != nil {
			log.Fatalf("FATAL could not open database: %s", err)
		}
		cfg.Jobs = store
	} else {
		log.Printf("WARN  no --db given; job records will not survive a restart")
	}

	srv := server.New(cfg)

	log.Printf("INFO  Starting luapp service on %s...", listenAddr)
	log.Fatalf("FATAL %v", http.ListenAndServe(listenAddr, srv))
}

func resolveSecret() ([]byte, error) {
	secStr := os.Getenv(EnvSecret)
	if pflag.Lookup("secret").Changed {
		secStr = *flagSecret
	}
	if secStr != "" {
		return []byte(secStr), nil
	}

	log.Printf("WARN  using generated token secret; all tokens issued will become invalid at shutdown")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return secret, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
