package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/featherpanel/backend/internal/config"
	"github.com/featherpanel/backend/internal/database"
)

// swapMockDB points the package-level gorm handle at a sqlmock-backed
// connection for the duration of one test.
func swapMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	prev := database.DB
	database.DB = gdb
	t.Cleanup(func() {
		database.DB = prev
		db.Close()
	})
	return mock
}

func TestUpdateScheduleKeepsFTPEnabledWhenOmitted(t *testing.T) {
	mock := swapMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM `featherpanel_settings`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "setting_key", "setting_value"}).
			AddRow(1, "developer_mode", "true"))

	mock.ExpectQuery("SELECT (.+) FROM `featherpanel_snapshot_schedules`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "cron_expr", "enabled", "retention_days", "ftp_enabled", "ftp_host"}).
			AddRow(1, "nightly", "0 3 * * *", true, 30, true, "ftp.example.com"))

	mock.ExpectExec("UPDATE `featherpanel_snapshot_schedules`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewSnapshotsHandler(&config.Config{DebugMode: true}, nil, nil)
	app := fiber.New()
	app.Put("/schedules/:id", h.UpdateSchedule)

	req := httptest.NewRequest("PUT", "/schedules/1", strings.NewReader(`{"name":"nightly-renamed"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Name       string `json:"name"`
			FTPEnabled bool   `json:"ftp_enabled"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, "nightly-renamed", payload.Data.Name)

	// A partial body that never mentions ftp_enabled must leave the stored
	// flag alone.
	assert.True(t, payload.Data.FTPEnabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
