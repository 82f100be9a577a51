package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"identity-broker/internal/model"
	"identity-broker/pkg/config"
	"identity-broker/pkg/database"
)

// testAuthCfg uses a low bcrypt cost so each test stays fast.
var testAuthCfg = config.AuthConfig{
	BcryptCost:                  4,
	DefaultJWTAlgorithm:         "HS256",
	DefaultJWTExpirationMinutes: 30,
	DefaultInvitationTTLHours:   48,
}

// newTestDB opens an isolated in-memory database with the broker schema
// applied. One connection only: a second connection to :memory: would
// see a different, empty database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// fakeSchemaManager records schema DDL instead of running it.
type fakeSchemaManager struct {
	created []string
	dropped []string
}

func (f *fakeSchemaManager) CreateSchema(name string) error {
	f.created = append(f.created, name)
	return nil
}

func (f *fakeSchemaManager) DropSchema(name string) error {
	f.dropped = append(f.dropped, name)
	return nil
}

// fixture bundles every service over one database.
type fixture struct {
	db          *gorm.DB
	schemas     *fakeSchemaManager
	projects    *ProjectService
	tenants     *TenantService
	users       *UserService
	memberships *MembershipService
	auth        *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	schemas := &fakeSchemaManager{}

	users := NewUserService(db, testAuthCfg)
	memberships := NewMembershipService(db, testAuthCfg)
	tenants := NewTenantService(db, schemas)

	return &fixture{
		db:          db,
		schemas:     schemas,
		projects:    NewProjectService(db, testAuthCfg),
		tenants:     tenants,
		users:       users,
		memberships: memberships,
		auth:        NewAuthService(db, testAuthCfg, users, memberships, tenants),
	}
}

// mustProject creates a project and returns it with its one-time
// credentials.
func (f *fixture) mustProject(t *testing.T, name, strategy string) (*model.Project, *model.Credentials) {
	t.Helper()
	project, creds, err := f.projects.Create(context.Background(), ProjectCreate{
		Name:           name,
		TenantStrategy: strategy,
	})
	require.NoError(t, err)
	return project, creds
}

func (f *fixture) mustTenant(t *testing.T, project *model.Project, name string) *model.Tenant {
	t.Helper()
	tenant, err := f.tenants.Create(context.Background(), project.ID, name)
	require.NoError(t, err)
	return tenant
}

func (f *fixture) mustUser(t *testing.T, email, password string) *model.User {
	t.Helper()
	user, err := f.auth.Register(context.Background(), email, password, "Test User")
	require.NoError(t, err)
	return user
}

func (f *fixture) mustMembership(t *testing.T, user *model.User, tenant *model.Tenant, roles ...string) *model.Membership {
	t.Helper()
	membership, err := f.memberships.Create(context.Background(), MembershipCreate{
		UserID:   user.ID,
		TenantID: tenant.ID,
		Roles:    model.RoleList(roles),
	})
	require.NoError(t, err)
	return membership
}
