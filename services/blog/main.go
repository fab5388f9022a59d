// Package main provides the blog binary.
//
// blog serve runs the backend, blog signup and blog signin talk to a running backend the
// way the web application does.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/blog/core/backend"
	"github.com/relabs-tech/blog/core/client"
	"github.com/relabs-tech/blog/core/csql"
	"github.com/relabs-tech/blog/core/logger"
)

const appName = "blog"

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Port             int           `env:"PORT,default=5000" description:"the port the backend listens on"`
	Postgres         string        `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string        `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	PostgresSchema   string        `env:"POSTGRES_SCHEMA,default=blog" description:"the schema all relations are created in"`
	LogLevel         string        `env:"LOG_LEVEL,default=info" description:"the log level (debug, info, warning, error)"`
	JWTSecret        string        `env:"JWT_SECRET,optional" description:"secret to sign access tokens, generated and kept in the database if empty"`
	JWTTTL           time.Duration `env:"JWT_TTL,default=24h" description:"lifetime of access tokens"`
	BcryptCost       int           `env:"BCRYPT_COST,default=10" description:"bcrypt cost for password hashes"`
	CORSOrigin       string        `env:"CORS_ORIGIN,default=*" description:"the origin allowed for cross origin requests"`
	RateLimit        float64       `env:"RATE_LIMIT,default=5" description:"requests per second and client on /api/auth, 0 disables the limit"`
	RateBurst        int           `env:"RATE_BURST,default=10" description:"burst size of the rate limit"`
	TrustProxy       bool          `env:"TRUST_PROXY,default=false" description:"take the client address from X-Forwarded-For, only behind a proxy"`
	SecureCookie     bool          `env:"SECURE_COOKIE,default=false" description:"send the access token cookie over https only"`
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Blog platform backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), signUpCmd(), signInCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, backend.Version)
		},
	}
}

// loadService reads envFile, if it exists, into the environment and decodes the service
// configuration from it
func loadService(envFile string) (*Service, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load %s: %w", envFile, err)
	}
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		return nil, err
	}
	return service, nil
}

func serveCmd() *cobra.Command {
	var (
		envFile  string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := loadService(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				service.LogLevel = logLevel
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, service)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "file with environment variables, ignored if missing")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level, overrides LOG_LEVEL")
	return cmd
}

func serve(ctx context.Context, service *Service) error {
	logger.InitLogger(logger.ParseLevel(service.LogLevel))
	rlog := logger.Default()

	db := csql.OpenWithSchema(service.Postgres, service.PostgresPassword, service.PostgresSchema)
	defer db.Close()

	router := mux.NewRouter()
	backend.New(&backend.Builder{
		DB:           db,
		Router:       router,
		JWTSecret:    service.JWTSecret,
		JWTTTL:       service.JWTTTL,
		BcryptCost:   service.BcryptCost,
		CORSOrigin:   service.CORSOrigin,
		RateLimit:    service.RateLimit,
		RateBurst:    service.RateBurst,
		TrustProxy:   service.TrustProxy,
		SecureCookie: service.SecureCookie,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		rlog.Infof("listen on port %s", srv.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func signUpCmd() *cobra.Command {
	var (
		url  string
		form client.SignUpForm
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Sign up a new user with a running backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.NewWithURL(url).SignUp(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s <%s>, continue at %s\n", result.Message, result.Username, result.Email, result.Next)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:5000", "base url of the backend")
	cmd.Flags().StringVar(&form.Username, "username", "", "username")
	cmd.Flags().StringVar(&form.Email, "email", "", "email")
	cmd.Flags().StringVar(&form.Password, "password", "", "password")
	return cmd
}

func signInCmd() *cobra.Command {
	var (
		url  string
		form client.SignInForm
	)
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a running backend and print the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewWithURL(url)
			u, err := c.SignIn(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s <%s>\n%s\n", u.Username, u.Email, c.Token())
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:5000", "base url of the backend")
	cmd.Flags().StringVar(&form.Email, "email", "", "email")
	cmd.Flags().StringVar(&form.Password, "password", "", "password")
	return cmd
}
