package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/condobill/condobill/internal/clock"
	"github.com/condobill/condobill/internal/config"
	"github.com/condobill/condobill/internal/logger"
	"github.com/condobill/condobill/internal/repository"
	"github.com/condobill/condobill/internal/types"
	"github.com/condobill/condobill/internal/validator"
)

// BaseServiceTestSuite provides common functionality for all service test
// suites: an in-memory document store, docstore-backed repositories over
// it, a frozen test clock and a client-scoped context.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *InMemoryDocStore
	repos  *repository.Repositories
	clock  *clock.TestClock
	logger *logger.Logger
	config *config.Configuration
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.store = NewInMemoryDocStore()
	s.repos = repository.NewRepositories(s.store, s.logger)
	s.clock = clock.NewTestClock(time.Date(2026, time.March, 15, 18, 0, 0, 0, time.UTC))
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.store.Clear()
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetStore() *InMemoryDocStore {
	return s.store
}

func (s *BaseServiceTestSuite) GetRepos() *repository.Repositories {
	return s.repos
}

func (s *BaseServiceTestSuite) GetClock() *clock.TestClock {
	return s.clock
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// ClientID returns the client the suite context is scoped to.
func (s *BaseServiceTestSuite) ClientID() string {
	return types.GetClientID(s.ctx)
}
