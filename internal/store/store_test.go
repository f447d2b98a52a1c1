package store

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"wxvault/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return parsed
}

func TestUpsertAndGetStations(t *testing.T) {
	store := setupTestStore(t)

	st := models.Station{
		ID:           "KSEA",
		Name:         "Seattle-Tacoma",
		Timezone:     "America/Los_Angeles",
		Latitude:     47.444,
		Longitude:    -122.314,
		HistoryStart: ts(t, "2018-01-01 00:00:00"),
	}
	if err := store.UpsertStation(st); err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}

	st.Name = "Seattle-Tacoma Intl"
	if err := store.UpsertStation(st); err != nil {
		t.Fatalf("UpsertStation update: %v", err)
	}

	stations, err := store.GetStations()
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("len(stations) = %d, want 1", len(stations))
	}
	if stations[0].Name != "Seattle-Tacoma Intl" {
		t.Errorf("Name = %q, want updated name", stations[0].Name)
	}
	if !stations[0].HistoryStart.Equal(st.HistoryStart) {
		t.Errorf("HistoryStart = %v, want %v", stations[0].HistoryStart, st.HistoryStart)
	}
}

func TestWriteTimeSeries_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	records := []models.TimeSeriesRecord{
		{Model: "GFS MOS", ValidTime: ts(t, "2018-09-01 00:00:00"), Temperature: models.Float(60)},
		{Model: "GFS MOS", ValidTime: ts(t, "2018-09-01 01:00:00"), Temperature: models.Float(59)},
	}
	now := ts(t, "2018-09-01 12:00:00")

	if err := store.WriteTimeSeries("KSEA", records, now); err != nil {
		t.Fatalf("WriteTimeSeries: %v", err)
	}
	if err := store.WriteTimeSeries("KSEA", records, now.Add(time.Hour)); err != nil {
		t.Fatalf("WriteTimeSeries repeat: %v", err)
	}

	n, err := store.CountTimeSeries("KSEA", "GFS MOS")
	if err != nil {
		t.Fatalf("CountTimeSeries: %v", err)
	}
	if n != 2 {
		t.Errorf("row count = %d, want 2 (no duplicates)", n)
	}
}

func TestWriteTimeSeries_PartialMerge(t *testing.T) {
	store := setupTestStore(t)
	when := ts(t, "2018-09-01 00:00:00")
	now := ts(t, "2018-09-01 12:00:00")

	first := []models.TimeSeriesRecord{{Model: "GFS MOS", ValidTime: when, Temperature: models.Float(60)}}
	if err := store.WriteTimeSeries("KSEA", first, now); err != nil {
		t.Fatalf("write first: %v", err)
	}

	second := []models.TimeSeriesRecord{{Model: "GFS MOS", ValidTime: when, Dewpoint: models.Float(50)}}
	if err := store.WriteTimeSeries("KSEA", second, now.Add(time.Hour)); err != nil {
		t.Fatalf("write second: %v", err)
	}

	got, err := store.ReadTimeSeries("KSEA", "GFS MOS", models.DateRange{Start: when, End: when})
	if err != nil {
		t.Fatalf("ReadTimeSeries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 merged row", len(got))
	}
	if !got[0].Temperature.Valid || got[0].Temperature.Float64 != 60 {
		t.Errorf("Temperature = %+v, want 60", got[0].Temperature)
	}
	if !got[0].Dewpoint.Valid || got[0].Dewpoint.Float64 != 50 {
		t.Errorf("Dewpoint = %+v, want 50", got[0].Dewpoint)
	}
}

func TestWriteTimeSeries_LastWriteWinsPerField(t *testing.T) {
	store := setupTestStore(t)
	when := ts(t, "2018-09-01 00:00:00")
	now := ts(t, "2018-09-01 12:00:00")

	first := []models.TimeSeriesRecord{{
		Model: "NAM MOS", ValidTime: when,
		Temperature: models.Float(60), WindSpeed: models.Float(8),
	}}
	if err := store.WriteTimeSeries("KSEA", first, now); err != nil {
		t.Fatalf("write first: %v", err)
	}

	// Later run revises temperature only; wind must survive.
	second := []models.TimeSeriesRecord{{Model: "NAM MOS", ValidTime: when, Temperature: models.Float(62)}}
	if err := store.WriteTimeSeries("KSEA", second, now.Add(time.Hour)); err != nil {
		t.Fatalf("write second: %v", err)
	}

	got, err := store.ReadTimeSeries("KSEA", "NAM MOS", models.DateRange{Start: when, End: when})
	if err != nil {
		t.Fatalf("ReadTimeSeries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Temperature.Float64 != 62 {
		t.Errorf("Temperature = %v, want 62 (later write wins)", got[0].Temperature.Float64)
	}
	if !got[0].WindSpeed.Valid || got[0].WindSpeed.Float64 != 8 {
		t.Errorf("WindSpeed = %+v, want 8 preserved", got[0].WindSpeed)
	}
}

func TestLatestTimestamp(t *testing.T) {
	store := setupTestStore(t)

	_, ok, err := store.LatestTimestamp("KSEA", "GFS MOS")
	if err != nil {
		t.Fatalf("LatestTimestamp empty: %v", err)
	}
	if ok {
		t.Fatal("LatestTimestamp on empty table should report no data")
	}

	records := []models.TimeSeriesRecord{
		{Model: "GFS MOS", ValidTime: ts(t, "2018-09-01 03:00:00"), Temperature: models.Float(58)},
		{Model: "GFS MOS", ValidTime: ts(t, "2018-09-01 09:00:00"), Temperature: models.Float(61)},
		{Model: "NAM MOS", ValidTime: ts(t, "2018-09-02 00:00:00"), Temperature: models.Float(55)},
	}
	if err := store.WriteTimeSeries("KSEA", records, ts(t, "2018-09-02 12:00:00")); err != nil {
		t.Fatalf("WriteTimeSeries: %v", err)
	}

	latest, ok, err := store.LatestTimestamp("KSEA", "GFS MOS")
	if err != nil {
		t.Fatalf("LatestTimestamp: %v", err)
	}
	if !ok {
		t.Fatal("expected data for GFS MOS")
	}
	want := ts(t, "2018-09-01 09:00:00")
	if !latest.Equal(want) {
		t.Errorf("latest = %v, want %v (other models must not leak in)", latest, want)
	}
}

func TestWriteDaily_Merge(t *testing.T) {
	store := setupTestStore(t)
	date := ts(t, "2018-09-01 00:00:00")
	now := ts(t, "2018-09-02 12:00:00")

	first := []models.DailyRecord{{Model: "GFS MOS", Date: date, High: models.Float(72)}}
	if err := store.WriteDaily("KSEA", first, now); err != nil {
		t.Fatalf("WriteDaily: %v", err)
	}
	second := []models.DailyRecord{{Model: "GFS MOS", Date: date, Low: models.Float(51)}}
	if err := store.WriteDaily("KSEA", second, now); err != nil {
		t.Fatalf("WriteDaily second: %v", err)
	}

	got, err := store.ReadDailyOn("KSEA", "GFS MOS", date)
	if err != nil {
		t.Fatalf("ReadDailyOn: %v", err)
	}
	if got == nil {
		t.Fatal("no daily row")
	}
	if !got.High.Valid || got.High.Float64 != 72 {
		t.Errorf("High = %+v, want 72", got.High)
	}
	if !got.Low.Valid || got.Low.Float64 != 51 {
		t.Errorf("Low = %+v, want 51", got.Low)
	}
}

func TestInitStation_StaleReset(t *testing.T) {
	store := setupTestStore(t)
	st := models.Station{ID: "KSEA"}

	old := ts(t, "2018-01-01 00:00:00")
	records := []models.TimeSeriesRecord{{Model: models.ModelObs, ValidTime: old, Temperature: models.Float(40)}}
	if err := store.WriteTimeSeries("KSEA", records, old); err != nil {
		t.Fatalf("WriteTimeSeries: %v", err)
	}
	climoRows := []models.DailyRecord{{Model: models.ModelClimo, Date: ts(t, "2016-09-01 00:00:00"), High: models.Float(70)}}
	if err := store.WriteDaily("KSEA", climoRows, old); err != nil {
		t.Fatalf("WriteDaily climo: %v", err)
	}

	// Fresh data: nothing to do.
	needs, err := store.InitStation(st, old.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("InitStation fresh: %v", err)
	}
	if needs {
		t.Error("fresh archive should not need historical")
	}

	// 60 days later the archive is stale and gets rebuilt.
	needs, err = store.InitStation(st, old.Add(60*24*time.Hour))
	if err != nil {
		t.Fatalf("InitStation stale: %v", err)
	}
	if !needs {
		t.Error("stale archive should need historical")
	}
	n, err := store.CountTimeSeries("KSEA", models.ModelObs)
	if err != nil {
		t.Fatalf("CountTimeSeries: %v", err)
	}
	if n != 0 {
		t.Errorf("timeseries rows after reset = %d, want 0", n)
	}

	// Climatology survives the reset.
	has, err := store.HasClimo("KSEA")
	if err != nil {
		t.Fatalf("HasClimo: %v", err)
	}
	if !has {
		t.Error("climo rows should survive a stale reset")
	}
}

func TestInitStation_EmptyNeedsHistorical(t *testing.T) {
	store := setupTestStore(t)
	needs, err := store.InitStation(models.Station{ID: "KPDX"}, ts(t, "2018-09-01 00:00:00"))
	if err != nil {
		t.Fatalf("InitStation: %v", err)
	}
	if !needs {
		t.Error("empty station should need historical")
	}
}

func TestRemoveStation(t *testing.T) {
	store := setupTestStore(t)

	if err := store.UpsertStation(models.Station{ID: "KSEA"}); err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}
	records := []models.TimeSeriesRecord{{Model: models.ModelObs, ValidTime: ts(t, "2018-09-01 00:00:00"), Temperature: models.Float(60)}}
	if err := store.WriteTimeSeries("KSEA", records, ts(t, "2018-09-01 01:00:00")); err != nil {
		t.Fatalf("WriteTimeSeries: %v", err)
	}

	if err := store.RemoveStation("KSEA"); err != nil {
		t.Fatalf("RemoveStation: %v", err)
	}

	stations, err := store.GetStations()
	if err != nil {
		t.Fatalf("GetStations: %v", err)
	}
	if len(stations) != 0 {
		t.Errorf("stations after remove = %d, want 0", len(stations))
	}

	// Tables are recreated lazily on the next write.
	if err := store.WriteTimeSeries("KSEA", records, ts(t, "2018-09-01 02:00:00")); err != nil {
		t.Fatalf("WriteTimeSeries after remove: %v", err)
	}
	n, err := store.CountTimeSeries("KSEA", models.ModelObs)
	if err != nil {
		t.Fatalf("CountTimeSeries: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestStationIDValidation(t *testing.T) {
	store := setupTestStore(t)
	err := store.WriteTimeSeries("bad id; DROP TABLE", []models.TimeSeriesRecord{
		{Model: "x", ValidTime: ts(t, "2018-09-01 00:00:00"), Temperature: models.Float(1)},
	}, ts(t, "2018-09-01 00:00:00"))
	if err == nil {
		t.Fatal("expected error for invalid station id")
	}
}

func TestCalcStatusTransitions(t *testing.T) {
	store := setupTestStore(t)
	date := ts(t, "2018-09-01 00:00:00")
	first := ts(t, "2018-09-02 06:00:00")

	status, err := store.GetCalcStatus("KSEA", date)
	if err != nil {
		t.Fatalf("GetCalcStatus: %v", err)
	}
	if status != nil {
		t.Fatal("expected no status for unseen day")
	}

	if err := store.MarkCalcPending("KSEA", date, first); err != nil {
		t.Fatalf("MarkCalcPending: %v", err)
	}
	// Re-marking must not move the first-pending time.
	if err := store.MarkCalcPending("KSEA", date, first.Add(12*time.Hour)); err != nil {
		t.Fatalf("MarkCalcPending again: %v", err)
	}

	status, err = store.GetCalcStatus("KSEA", date)
	if err != nil {
		t.Fatalf("GetCalcStatus: %v", err)
	}
	if status == nil || status.State != CalcPending {
		t.Fatalf("status = %+v, want pending", status)
	}
	if !status.Date.Equal(date) {
		t.Errorf("Date = %v, want %v", status.Date, date)
	}
	if !status.FirstPendingAt.Equal(first) {
		t.Errorf("FirstPendingAt = %v, want %v", status.FirstPendingAt, first)
	}

	if err := store.MarkCalcState("KSEA", date, CalcSkipped, first.Add(40*time.Hour)); err != nil {
		t.Fatalf("MarkCalcState: %v", err)
	}
	status, err = store.GetCalcStatus("KSEA", date)
	if err != nil {
		t.Fatalf("GetCalcStatus: %v", err)
	}
	if status.State != CalcSkipped {
		t.Errorf("state = %q, want skipped", status.State)
	}
	if !status.ComputedAt.Valid {
		t.Error("ComputedAt should be set after a terminal transition")
	}
}
