// Package test holds the integration suite, which runs the backend against Postgres in a container.
package test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/blog/core/backend"
	"github.com/relabs-tech/blog/core/csql"
)

const schema = "blog_test"

type IntegrationTestSuite struct {
	*backend.Backend
	srv *http.Server
	url string

	dbConn *csql.DB
	router *mux.Router
	suite.Suite
	postgresContainer testcontainers.Container
	postgresDSN       string
	postgresPassword  string
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)
	s.postgresDSN = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB)
	s.postgresPassword = postgresPassword

	s.router = mux.NewRouter()
	s.dbConn = csql.OpenWithSchema(s.postgresDSN, s.postgresPassword, schema)
	s.dbConn.ClearSchema()

	s.Backend = backend.New(&backend.Builder{
		DB:         s.dbConn,
		Router:     s.router,
		BcryptCost: 4,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.url = "http://" + listener.Addr().String()
	s.srv = &http.Server{
		Handler: s.router,
	}
	go func() {
		err := s.srv.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			s.T().Errorf("Failed to start HTTP server: %v", err)
		}
	}()
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.srv != nil {
		err := s.srv.Shutdown(ctx)
		s.Require().NoError(err)
	}
	if s.dbConn != nil {
		s.dbConn.Close()
	}
	if s.postgresContainer != nil {
		err := s.postgresContainer.Terminate(ctx)
		s.Require().NoError(err)
	}
}
