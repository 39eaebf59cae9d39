package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/routepay/internal/clock"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	routerepository "github.com/smallbiznis/routepay/internal/route/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func newService(t *testing.T) (routedomain.Service, *clock.FakeClock, *observer.ObservedLogs) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&routedomain.Route{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
	core, logs := observer.New(zapcore.WarnLevel)

	svc := New(Params{
		DB:    db,
		Log:   zap.New(core),
		GenID: node,
		Clock: clk,
		Repo:  routerepository.Provide(),
	})
	return svc, clk, logs
}

func TestUpsert_CreatesThenReplaces(t *testing.T) {
	svc, clk, _ := newService(t)
	ctx := context.Background()

	res, err := svc.Upsert(ctx, routedomain.UpsertRequest{
		Name:        " North Loop ",
		ZipCodes:    []string{"6103", "06105-1234", "06103", " "},
		RatePerStop: decimal.RequireFromString("1.75"),
		BaseRate:    decimal.RequireFromString("90"),
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "north-loop", res.Route.Code)
	assert.Equal(t, "North Loop", res.Route.Name)
	assert.Equal(t, "06103, 06105", res.Route.ZipCodes)

	created := res.Route.CreatedAt
	clk.Advance(time.Hour)
	res, err = svc.Upsert(ctx, routedomain.UpsertRequest{
		Name:        "North Loop",
		ZipCodes:    []string{"06107"},
		RatePerStop: decimal.RequireFromString("2"),
	})
	require.NoError(t, err)
	assert.False(t, res.Created)

	got, err := svc.Get(ctx, "north-loop")
	require.NoError(t, err)
	assert.Equal(t, "06107", got.ZipCodes)
	assert.True(t, got.RatePerStop.Equal(decimal.RequireFromString("2")))
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.After(created))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpsert_RejectsBadInput(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  routedomain.UpsertRequest
		want error
	}{
		{name: "blank name", req: routedomain.UpsertRequest{Name: " ", ZipCodes: []string{"06103"}}, want: routedomain.ErrInvalidName},
		{name: "no zips", req: routedomain.UpsertRequest{Name: "A", ZipCodes: []string{" "}}, want: routedomain.ErrInvalidZip},
		{name: "letters", req: routedomain.UpsertRequest{Name: "A", ZipCodes: []string{"06A03"}}, want: routedomain.ErrInvalidZip},
		{name: "short plus4", req: routedomain.UpsertRequest{Name: "A", ZipCodes: []string{"06103-12"}}, want: routedomain.ErrInvalidZip},
		{name: "too long", req: routedomain.UpsertRequest{Name: "A", ZipCodes: []string{"061031"}}, want: routedomain.ErrInvalidZip},
		{name: "negative rate", req: routedomain.UpsertRequest{Name: "A", ZipCodes: []string{"06103"}, BaseRate: decimal.RequireFromString("-1")}, want: routedomain.ErrInvalidRate},
	}
	for _, tc := range cases {
		_, err := svc.Upsert(ctx, tc.req)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpsert_WarnsOnSharedZip(t *testing.T) {
	svc, _, logs := newService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, routedomain.UpsertRequest{Name: "North", ZipCodes: []string{"06103", "06105"}})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, routedomain.UpsertRequest{Name: "South", ZipCodes: []string{"06105", "06106"}})
	require.NoError(t, err)

	warnings := logs.FilterMessage("zip claimed by more than one route").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "06105", warnings[0].ContextMap()["zip"])
	assert.Equal(t, "north", warnings[0].ContextMap()["other_route_code"])
}

func TestDelete(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, routedomain.UpsertRequest{Name: "North", ZipCodes: []string{"06103"}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "north"))
	assert.ErrorIs(t, svc.Delete(ctx, "north"), routedomain.ErrNotFound)

	_, err = svc.Get(ctx, "north")
	assert.ErrorIs(t, err, routedomain.ErrNotFound)
}
