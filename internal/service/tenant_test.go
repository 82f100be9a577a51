package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-broker/internal/model"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Acme   Corp  ", "acme-corp"},
		{"Café Société", "cafe-societe"},
		{"Über GmbH & Co.", "uber-gmbh-co"},
		{"already-a-slug", "already-a-slug"},
		{"Team #42", "team-42"},
		{"!!!", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, slugify(tc.in), "slugify(%q)", tc.in)
	}
}

func TestTenantCreateSchemaStrategy(t *testing.T) {
	f := newFixture(t)
	project, _ := f.mustProject(t, "Acme", model.StrategySchema)

	tenant := f.mustTenant(t, project, "Blue Team")

	assert.Equal(t, "blue-team", tenant.Slug)
	require.NotNil(t, tenant.SchemaName)
	assert.Equal(t, "tenant_acme_blue_team", *tenant.SchemaName)
	assert.Equal(t, []string{"tenant_acme_blue_team"}, f.schemas.created)
}

func TestTenantCreateDiscriminatorStrategy(t *testing.T) {
	f := newFixture(t)
	project, _ := f.mustProject(t, "Acme", model.StrategyDiscriminator)

	tenant := f.mustTenant(t, project, "Blue Team")

	assert.Nil(t, tenant.SchemaName)
	assert.Empty(t, f.schemas.created)
}

func TestTenantSlugCollisionWithinProject(t *testing.T) {
	f := newFixture(t)
	project, _ := f.mustProject(t, "Acme", model.StrategySchema)

	first := f.mustTenant(t, project, "Acme Corp")
	second := f.mustTenant(t, project, "Acme Corp")

	assert.Equal(t, "acme-corp", first.Slug)
	assert.True(t, strings.HasPrefix(second.Slug, "acme-corp-"))
	assert.Len(t, second.Slug, len("acme-corp-")+8)

	// Distinct slugs yield distinct backing schemas.
	require.NotNil(t, first.SchemaName)
	require.NotNil(t, second.SchemaName)
	assert.NotEqual(t, *first.SchemaName, *second.SchemaName)
}

func TestTenantSlugReusableAcrossProjects(t *testing.T) {
	f := newFixture(t)
	projectA, _ := f.mustProject(t, "Alpha", model.StrategyDiscriminator)
	projectB, _ := f.mustProject(t, "Beta", model.StrategyDiscriminator)

	a := f.mustTenant(t, projectA, "Sales")
	b := f.mustTenant(t, projectB, "Sales")

	assert.Equal(t, "sales", a.Slug)
	assert.Equal(t, "sales", b.Slug)
}

func TestTenantCreateMissingProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.tenants.Create(context.Background(), uuid.New(), "Blue Team")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestTenantRenameBlockedUnderSchemaIsolation(t *testing.T) {
	f := newFixture(t)
	project, _ := f.mustProject(t, "Acme", model.StrategySchema)
	tenant := f.mustTenant(t, project, "Blue Team")

	name := "Red Team"
	_, err := f.tenants.Update(context.Background(), tenant.ID, TenantUpdate{Name: &name})
	require.Error(t, err)
	assert.Equal(t, KindBadRequest, KindOf(err))
}

func TestTenantRenameAllowedUnderDiscriminator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project, _ := f.mustProject(t, "Acme", model.StrategyDiscriminator)
	tenant := f.mustTenant(t, project, "Blue Team")

	name := "Red Team"
	_, err := f.tenants.Update(ctx, tenant.ID, TenantUpdate{Name: &name})
	require.NoError(t, err)

	reloaded, err := f.tenants.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Red Team", reloaded.Name)
	// The slug stays put even when the name changes.
	assert.Equal(t, "blue-team", reloaded.Slug)
}

func TestTenantDeleteDropsSchema(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	project, _ := f.mustProject(t, "Acme", model.StrategySchema)
	tenant := f.mustTenant(t, project, "Blue Team")

	require.NoError(t, f.tenants.Delete(ctx, tenant.ID))
	assert.Equal(t, []string{"tenant_acme_blue_team"}, f.schemas.dropped)

	gone, err := f.tenants.GetByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTenantListByProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	projectA, _ := f.mustProject(t, "Alpha", model.StrategyDiscriminator)
	projectB, _ := f.mustProject(t, "Beta", model.StrategyDiscriminator)

	f.mustTenant(t, projectA, "One")
	f.mustTenant(t, projectA, "Two")
	f.mustTenant(t, projectB, "Other")

	tenants, err := f.tenants.ListByProject(ctx, projectA.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "two", tenants[0].Slug)
	assert.Equal(t, "one", tenants[1].Slug)
}

func TestTenantGetWithProject(t *testing.T) {
	f := newFixture(t)
	project, _ := f.mustProject(t, "Acme", model.StrategyDiscriminator)
	tenant := f.mustTenant(t, project, "Blue Team")

	loaded, err := f.tenants.GetWithProject(context.Background(), tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, project.ID, loaded.Project.ID)
	assert.Equal(t, "Acme", loaded.Project.Name)
}
