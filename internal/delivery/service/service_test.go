package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/routepay/internal/config"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	deliveryrepository "github.com/smallbiznis/routepay/internal/delivery/repository"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	driverrepository "github.com/smallbiznis/routepay/internal/driver/repository"
	"github.com/smallbiznis/routepay/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	repo   deliverydomain.Repository
	driver driverdomain.DriverProfile
	svc    deliverydomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&driverdomain.DriverProfile{}, &deliverydomain.DeliveryEvent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	driverRepo := driverrepository.Provide()
	now := time.Now().UTC()
	driver := driverdomain.DriverProfile{ID: node.Generate(), DriverCode: "D-1", FullName: "Sam Reyes", SalaryType: "Regular", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, driverRepo.Insert(context.Background(), db, &driver))

	return fixture{
		db:     db,
		node:   node,
		repo:   deliveryrepository.Provide(),
		driver: driver,
		svc:    New(Params{DB: db, Log: zap.NewNop(), Cfg: config.Config{}, DriverRepo: driverRepo}),
	}
}

func (f fixture) insert(t *testing.T, barcode string, at time.Time) bool {
	t.Helper()
	ok, err := f.repo.InsertIgnore(context.Background(), f.db, &deliverydomain.DeliveryEvent{
		ID:            f.node.Generate(),
		DriverID:      f.driver.ID,
		Barcode:       barcode,
		UploadBatchID: "batch",
		Address:       "1 Main St",
		Status:        deliverydomain.StatusGeocoded,
		LastEvent:     "Delivered",
		CreatedAt:     at,
	})
	require.NoError(t, err)
	return ok
}

func TestRepository_InsertIgnoreSkipsDuplicates(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)

	assert.True(t, f.insert(t, "B1", at))
	assert.False(t, f.insert(t, "B1", at.Add(time.Hour)))

	existing, err := f.repo.ExistingBarcodes(context.Background(), f.db, f.driver.ID, []string{"B1", "B2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"B1": {}}, existing)

	delivered, err := f.repo.ListByLastEvent(context.Background(), f.db, f.driver.ID, "delivered")
	require.NoError(t, err)
	require.Len(t, delivered, 1)
	assert.True(t, delivered[0].CreatedAt.Equal(at))
}

func TestRepository_DeleteAndCountByDay(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	f.insert(t, "B1", day.Add(9*time.Hour))
	f.insert(t, "B2", day.Add(23*time.Hour))
	f.insert(t, "B3", day.AddDate(0, 0, 1).Add(time.Hour))

	deleted, err := f.repo.DeleteCreatedBetween(context.Background(), f.db, f.driver.ID, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := f.repo.CountCreatedBetween(context.Background(), f.db, f.driver.ID, day.AddDate(0, 0, -3), day.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		f.insert(t, fmt.Sprintf("B%d", i), day.Add(time.Duration(i)*time.Hour))
	}
	f.insert(t, "OTHER", day.AddDate(0, 0, 2))

	resp, err := f.svc.List(context.Background(), deliverydomain.ListRequest{
		DriverCode: "D-1",
		Date:       "2025-03-04",
		Page:       pagination.Page{Page: 1, Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.PageInfo.Total)
	assert.Equal(t, 3, resp.PageInfo.TotalPages)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "B4", resp.Data[0].Barcode)

	resp, err = f.svc.List(context.Background(), deliverydomain.ListRequest{
		StartDate: "03/05/2025",
		EndDate:   "2025-03-06",
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "OTHER", resp.Data[0].Barcode)
}

func TestList_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), deliverydomain.ListRequest{DriverCode: "nobody"})
	assert.True(t, errors.Is(err, deliverydomain.ErrDriverUnknown))

	_, err = f.svc.List(context.Background(), deliverydomain.ListRequest{Date: "yesterday"})
	assert.True(t, errors.Is(err, deliverydomain.ErrInvalidDate))

	_, err = f.svc.List(context.Background(), deliverydomain.ListRequest{StartDate: "2025-03-06", EndDate: "2025-03-01"})
	assert.True(t, errors.Is(err, deliverydomain.ErrInvalidRange))
}
