package testutil

import (
	"context"
	"time"

	"github.com/counterpos/counterpos/internal/config"
	"github.com/counterpos/counterpos/internal/domain/tenant"
	"github.com/counterpos/counterpos/internal/integration"
	"github.com/counterpos/counterpos/internal/integration/cash"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/metrics"
	"github.com/counterpos/counterpos/internal/rbac"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/counterpos/counterpos/internal/validator"
	"github.com/stretchr/testify/suite"
)

// MockProviderCode is the provider code of the scriptable test provider
const MockProviderCode types.PaymentProvider = "mobilemoney"

// Stores holds all the repository implementations for testing
type Stores struct {
	TenantRepo   *InMemoryTenantStore
	SequenceRepo *InMemorySequenceStore
	OrderRepo    *InMemoryOrderStore
	PaymentRepo  *InMemoryPaymentStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx          context.Context
	stores       Stores
	db           *MockPostgresClient
	logger       *logger.Logger
	config       *config.Configuration
	metrics      *metrics.Metrics
	rbac         *rbac.RBACService
	notifier     *RecordingNotifier
	mockProvider *MockProvider
	providers    *integration.Factory
	now          time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.config.Logging.Level = types.LogLevelInfo
	s.logger = logger.NewNopLogger()

	var err error
	s.rbac, err = rbac.NewRBACService()
	if err != nil {
		s.T().Fatalf("failed to load roles: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Now().UTC()
	s.setupStores()
	s.setupTenants()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		TenantRepo:   NewInMemoryTenantStore(),
		SequenceRepo: NewInMemorySequenceStore(),
		OrderRepo:    NewInMemoryOrderStore(),
		PaymentRepo:  NewInMemoryPaymentStore(),
	}
	s.db = NewMockPostgresClient(s.logger)
	s.metrics = metrics.New()
	s.notifier = NewRecordingNotifier()
	s.mockProvider = NewMockProvider(MockProviderCode)
	s.providers = integration.NewFactoryWithProviders(s.logger, cash.NewProvider(), s.mockProvider)
}

func (s *BaseServiceTestSuite) setupTenants() {
	for _, id := range []string{TestTenantID, OtherTestTenantID} {
		s.NoError(s.stores.TenantRepo.Create(s.ctx, &tenant.Tenant{
			ID:        id,
			Name:      "Business " + id,
			Timezone:  "UTC",
			Status:    types.StatusPublished,
			CreatedAt: s.now,
			UpdatedAt: s.now,
		}))
	}
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.TenantRepo.Clear()
	s.stores.SequenceRepo.Clear()
	s.stores.OrderRepo.Clear()
	s.stores.PaymentRepo.Clear()
	s.notifier.Clear()
}

// GetContext returns the test context: primary tenant, owner role
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetDB returns the mock transaction client
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient {
	return s.db
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetMetrics() *metrics.Metrics {
	return s.metrics
}

func (s *BaseServiceTestSuite) GetRBAC() *rbac.RBACService {
	return s.rbac
}

// GetNotifier returns the notifier recording every published event
func (s *BaseServiceTestSuite) GetNotifier() *RecordingNotifier {
	return s.notifier
}

// GetProviders returns a factory with the cash provider and the mock provider
func (s *BaseServiceTestSuite) GetProviders() *integration.Factory {
	return s.providers
}

// GetMockProvider returns the scriptable provider registered as MockProviderCode
func (s *BaseServiceTestSuite) GetMockProvider() *MockProvider {
	return s.mockProvider
}

// GetNow returns the time captured when the test started
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
