// Package climo retrieves GHCN-Daily climatology normals from the NCEI FTP
// archive. Normals are the anomaly baseline for verification statistics;
// a station without them degrades to raw scores, it never fails the run.
package climo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"wxvault/internal/models"
	"wxvault/internal/units"
)

const (
	ncdcHost        = "ftp.ncei.noaa.gov:21"
	dlyPath         = "/pub/data/ghcn/daily/all/%s.dly"
	isdHistoryPath  = "/pub/data/noaa/isd-history.txt"
	isdHistoryFile  = "isd-history.txt"
	missingValue    = -9999
	fetchMaxElapsed = 2 * time.Minute
)

// Elements used for the high/low/wind/rain normals.
var wantedElements = map[string]bool{
	"TMAX": true,
	"TMIN": true,
	"WSF2": true,
	"PRCP": true,
}

type Client struct {
	host        string
	siteDataDir string
	startYear   int
}

func New(siteDataDir string, startYear int) *Client {
	return &Client{host: ncdcHost, siteDataDir: siteDataDir, startYear: startYear}
}

// Normals returns one climatological DailyRecord per calendar day, dated in
// the last leap year so Feb 29 has a home, with Model set to climo.
func (c *Client) Normals(ctx context.Context, station models.Station) ([]models.DailyRecord, error) {
	ghcnID, err := c.resolveGHCNID(ctx, station.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve GHCN id for %s: %w", station.ID, err)
	}
	log.Printf("climo: station %s resolved to GHCN %s", station.ID, ghcnID)

	data, err := c.cachedFetch(ctx, ghcnID+".dly", fmt.Sprintf(dlyPath, ghcnID))
	if err != nil {
		return nil, fmt.Errorf("fetch GHCN data for %s: %w", ghcnID, err)
	}

	values := parseDly(data, wantedElements, c.startYear)
	return buildNormals(station.ID, values, time.Now().UTC()), nil
}

// resolveGHCNID maps a 4-letter station ID to its GHCN identifier via the
// NCDC ISD history index, cached under the site data directory.
func (c *Client) resolveGHCNID(ctx context.Context, stationID string) (string, error) {
	data, err := c.cachedFetch(ctx, isdHistoryFile, isdHistoryPath)
	if err != nil {
		return "", err
	}

	needle := strings.ToUpper(stationID)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, needle) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.HasPrefix(fields[0], "99999") || strings.HasPrefix(fields[1], "99999") {
			continue
		}
		wban, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		return fmt.Sprintf("USW000%05d", wban), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("station %s not found in %s", stationID, isdHistoryFile)
}

// cachedFetch returns the named file from the site data directory, fetching
// it over FTP if absent.
func (c *Client) cachedFetch(ctx context.Context, name, remotePath string) ([]byte, error) {
	local := filepath.Join(c.siteDataDir, name)
	if data, err := os.ReadFile(local); err == nil {
		return data, nil
	}

	data, err := c.fetch(ctx, remotePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.siteDataDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) fetch(ctx context.Context, remotePath string) ([]byte, error) {
	var data []byte
	operation := func() error {
		conn, err := ftp.Dial(c.host, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login("anonymous", "anonymous"); err != nil {
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}
		resp, err := conn.Retr(remotePath)
		if err != nil {
			return fmt.Errorf("ftp retr %s: %w", remotePath, err)
		}
		defer resp.Close()

		data, err = io.ReadAll(resp)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = fetchMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return data, nil
}

type dayValue struct {
	Year  int
	Month int
	Day   int
	Value float64
}

// parseDly decodes the GHCN-Daily fixed-width format: one line per station,
// year, month and element, with 31 day slots of 8 characters (5-char value
// plus three flags) starting at offset 21.
func parseDly(data []byte, elements map[string]bool, sinceYear int) map[string][]dayValue {
	out := make(map[string][]dayValue)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 269 {
			continue
		}
		element := line[17:21]
		if !elements[element] {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(line[11:15]))
		if err != nil || year < sinceYear {
			continue
		}
		month, err := strconv.Atoi(strings.TrimSpace(line[15:17]))
		if err != nil {
			continue
		}
		for day := 1; day <= 31; day++ {
			start := 21 + (day-1)*8
			raw := strings.TrimSpace(line[start : start+5])
			v, err := strconv.Atoi(raw)
			if err != nil || v == missingValue {
				continue
			}
			out[element] = append(out[element], dayValue{Year: year, Month: month, Day: day, Value: float64(v)})
		}
	}
	return out
}

// buildNormals averages each element by calendar day and converts to the
// archive's units (F, kt, in).
func buildNormals(stationID string, values map[string][]dayValue, now time.Time) []models.DailyRecord {
	type key struct{ Month, Day int }
	means := make(map[string]map[key]float64)
	for element, vals := range values {
		sums := make(map[key]float64)
		counts := make(map[key]int)
		for _, v := range vals {
			k := key{v.Month, v.Day}
			sums[k] += v.Value
			counts[k]++
		}
		means[element] = make(map[key]float64, len(sums))
		for k, sum := range sums {
			means[element][k] = sum / float64(counts[k])
		}
	}

	year := lastLeapYear(now)
	var records []models.DailyRecord
	for k := range means["TMAX"] {
		d := models.DailyRecord{
			StationID: stationID,
			Model:     models.ModelClimo,
			Date:      time.Date(year, time.Month(k.Month), k.Day, 0, 0, 0, 0, time.UTC),
			High:      models.Float(units.TenthsCToF(means["TMAX"][k])),
		}
		if v, ok := means["TMIN"][k]; ok {
			d.Low = models.Float(units.TenthsCToF(v))
		}
		if v, ok := means["WSF2"][k]; ok {
			d.Wind = models.Float(units.TenthsMsToKt(v))
		}
		if v, ok := means["PRCP"][k]; ok {
			d.Rain = models.Float(units.TenthsMmToIn(v))
		}
		records = append(records, d)
	}
	return records
}

// lastLeapYear returns the most recent leap year not after now.
func lastLeapYear(now time.Time) int {
	y := now.Year()
	for !isLeap(y) {
		y--
	}
	return y
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
