// Package importer loads geofences (CSV or YAML) and user accounts (CSV) in
// bulk. Rows are created one by one through the engine services; a bad row is
// reported and skipped.
package importer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/common"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/engine"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/geo"
	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/models"
)

var ErrUnsupportedFormat = errors.New("unsupported import format")

var (
	csvColumns     = []string{"name", "risk_level", "coordinates"}
	userCSVColumns = []string{"email", "password"}
)

type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type Result struct {
	Created []uint     `json:"created"`
	Errors  []RowError `json:"errors"`
}

// UserResult lists new user ids; rows whose email already exists are
// counted as skipped and left untouched.
type UserResult struct {
	Created []uint     `json:"created"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`
}

type Importer struct {
	Geofence engine.IGeofence
	Auth     engine.IAuth
}

func New(geofence engine.IGeofence, auth engine.IAuth) *Importer {
	return &Importer{Geofence: geofence, Auth: auth}
}

// yamlRow mirrors one CSV row; coordinates stay loosely typed until they are
// re-encoded for geo.ParseCoordinates.
type yamlRow struct {
	Name        string `yaml:"name"`
	RiskLevel   string `yaml:"risk_level"`
	Coordinates any    `yaml:"coordinates"`
}

// ImportFile picks the decoder from the file extension.
func (im *Importer) ImportFile(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return im.ImportCSV(ctx, r)
	case ".yaml", ".yml":
		return im.ImportYAML(ctx, r)
	}
	return nil, fmt.Errorf("%w: %q (want .csv, .yaml or .yml)", ErrUnsupportedFormat, filename)
}

// csvTable wraps a csv reader whose header row has been checked for the
// required columns.
type csvTable struct {
	reader *csv.Reader
	index  map[string]int
}

func openCSV(r io.Reader, required []string) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty csv", engine.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %w", engine.ErrValidation, err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: csv header is missing column %q", engine.ErrValidation, col)
		}
	}
	return &csvTable{reader: reader, index: index}, nil
}

func (t *csvTable) field(record []string, col string) string {
	if i, ok := t.index[col]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

// each calls fn for every data row, numbered from 1. The reader cannot
// resync after a quoting error, so that error ends the walk.
func (t *csvTable) each(fail func(row int, err error), fn func(row int, record []string)) {
	for row := 1; ; row++ {
		record, err := t.reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			fail(row, err)
			return
		}
		fn(row, record)
	}
}

// ImportCSV reads a header row naming name, risk_level and coordinates in any
// order. Rows are numbered from 1 for the first data row.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader) (*Result, error) {
	table, err := openCSV(r, csvColumns)
	if err != nil {
		return nil, err
	}

	result := newResult()
	table.each(result.fail, func(row int, record []string) {
		im.importRow(ctx, result, row,
			table.field(record, "name"), table.field(record, "risk_level"), []byte(table.field(record, "coordinates")))
	})

	im.logResult("csv", result)
	return result, nil
}

// ImportUsersCSV reads email, password and an optional role column. Role
// defaults to tourist. Existing emails are skipped, never updated.
func (im *Importer) ImportUsersCSV(ctx context.Context, r io.Reader) (*UserResult, error) {
	if im.Auth == nil {
		return nil, errors.New("auth service not available")
	}

	table, err := openCSV(r, userCSVColumns)
	if err != nil {
		return nil, err
	}

	result := &UserResult{Created: []uint{}, Errors: []RowError{}}
	fail := func(row int, err error) {
		result.Errors = append(result.Errors, RowError{Row: row, Error: err.Error()})
	}

	table.each(fail, func(row int, record []string) {
		email, password := table.field(record, "email"), table.field(record, "password")
		if email == "" || password == "" {
			fail(row, fmt.Errorf("%w: missing email/password", engine.ErrValidation))
			return
		}

		role := models.Role(strings.ToLower(table.field(record, "role")))
		if role == "" {
			role = models.RoleTourist
		}

		user, created, err := im.Auth.EnsureUser(ctx, email, password, role)
		if err != nil {
			fail(row, err)
			return
		}
		if created {
			result.Created = append(result.Created, user.ID)
		} else {
			result.Skipped++
		}
	})

	common.GetCategoryLogger(common.LoggerNameImporter, common.LoggerCategoryImport).
		Info("User import finished",
			zap.Int("created", len(result.Created)),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", len(result.Errors)))
	return result, nil
}

// ImportYAML reads a sequence of {name, risk_level, coordinates} mappings.
func (im *Importer) ImportYAML(ctx context.Context, r io.Reader) (*Result, error) {
	var rows []yamlRow
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty yaml document", engine.ErrValidation)
		}
		return nil, fmt.Errorf("%w: decode yaml: %w", engine.ErrValidation, err)
	}

	result := newResult()
	for i, row := range rows {
		coordinates, err := json.Marshal(row.Coordinates)
		if err != nil {
			result.fail(i+1, err)
			continue
		}
		im.importRow(ctx, result, i+1, row.Name, row.RiskLevel, coordinates)
	}

	im.logResult("yaml", result)
	return result, nil
}

func (im *Importer) importRow(ctx context.Context, result *Result, row int, name, risk string, coordinates []byte) {
	polygon, err := geo.ParseCoordinates(coordinates)
	if err != nil {
		result.fail(row, err)
		return
	}

	riskLevel, err := models.ParseRiskLevel(strings.ToLower(risk))
	if err != nil {
		result.fail(row, err)
		return
	}

	g, err := im.Geofence.CreateGeofence(ctx, &engine.GeofenceInput{
		Name:      name,
		RiskLevel: riskLevel,
		Polygon:   polygon,
	})
	if err != nil {
		result.fail(row, err)
		return
	}
	result.Created = append(result.Created, g.ID)
}

func (im *Importer) logResult(format string, result *Result) {
	common.GetCategoryLogger(common.LoggerNameImporter, common.LoggerCategoryImport).
		Info("Geofence import finished",
			zap.String("format", format),
			zap.Int("created", len(result.Created)),
			zap.Int("failed", len(result.Errors)))
}

func newResult() *Result {
	return &Result{Created: []uint{}, Errors: []RowError{}}
}

func (r *Result) fail(row int, err error) {
	r.Errors = append(r.Errors, RowError{Row: row, Error: err.Error()})
}
